//go:build !govips || !cgo

package transform

func Startup() error {
	return nil
}

func Shutdown() {}

func New(opts Options) (Engine, error) {
	return newStdlibEngine(opts), nil
}
