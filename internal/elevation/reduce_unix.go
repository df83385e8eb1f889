//go:build !windows

package elevation

import (
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

// invokingUser returns the uid and gid of the user that ran sudo or pkexec.
func invokingUser(getenv func(string) string) (uint32, uint32, bool) {
	uidStr := getenv("SUDO_UID")
	gidStr := getenv("SUDO_GID")
	if uidStr == "" {
		uidStr = getenv("PKEXEC_UID")
	}
	if uidStr == "" {
		return 0, 0, false
	}

	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return 0, 0, false
	}

	if gidStr == "" {
		u, err := user.LookupId(uidStr)
		if err != nil {
			return 0, 0, false
		}
		gidStr = u.Gid
	}
	gid, err := strconv.ParseUint(gidStr, 10, 32)
	if err != nil {
		return 0, 0, false
	}

	return uint32(uid), uint32(gid), true
}

// reduce runs cmd as the invoking user when one is known.
func reduce(cmd *exec.Cmd, elevated bool, getenv func(string) string) *exec.Cmd {
	if !elevated {
		return cmd
	}
	uid, gid, ok := invokingUser(getenv)
	if !ok {
		return cmd
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{Uid: uid, Gid: gid}
	return cmd
}
