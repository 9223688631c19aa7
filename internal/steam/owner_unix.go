//go:build !windows

package steam

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// pathOwner returns the username of the account owning path.
func pathOwner(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("no ownership info for %s", path)
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10))
	if err != nil {
		return "", fmt.Errorf("looking up uid %d: %w", st.Uid, err)
	}
	return u.Username, nil
}
