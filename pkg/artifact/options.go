package artifact

import (
	"github.com/go-logr/logr"
	vfs "github.com/twpayne/go-vfs/v4"
	"github.com/variantdev/reml/pkg/cmdsite"
	"github.com/variantdev/reml/pkg/operator"
)

type Option interface {
	SetOption(h *Handler) error
}

type optionFunc func(h *Handler) error

func (f optionFunc) SetOption(h *Handler) error {
	return f(h)
}

func Logger(l logr.Logger) Option {
	return optionFunc(func(h *Handler) error {
		h.Logger = l
		return nil
	})
}

func FS(fs vfs.FS) Option {
	return optionFunc(func(h *Handler) error {
		h.fs = fs
		return nil
	})
}

func Commander(cmdr cmdsite.RunCommand) Option {
	return optionFunc(func(h *Handler) error {
		h.cmdsite = cmdsite.New(cmdsite.RunCmd(cmdr))
		return nil
	})
}

func Fetch(f Fetcher) Option {
	return optionFunc(func(h *Handler) error {
		h.fetcher = f
		return nil
	})
}

func Operator(op operator.Operator) Option {
	return optionFunc(func(h *Handler) error {
		h.Operator = op
		return nil
	})
}

// Dir makes the handler work in an existing directory, which Close leaves in place.
func Dir(dir string) Option {
	return optionFunc(func(h *Handler) error {
		h.dir = dir
		return nil
	})
}
