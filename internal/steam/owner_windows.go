//go:build windows

package steam

import "fmt"

func pathOwner(path string) (string, error) {
	return "", fmt.Errorf("file ownership lookup not supported on windows")
}
