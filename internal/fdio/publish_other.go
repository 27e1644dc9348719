//go:build !linux

package fdio

import (
	"errors"
	"os"
)

var errAnonymousUnsupported = errors.New("anonymous files not supported")

func createAnonymous(string, os.FileMode) (*os.File, error) {
	return nil, errAnonymousUnsupported
}

func linkAnonymous(*os.File, string) error {
	return errAnonymousUnsupported
}
