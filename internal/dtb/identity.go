package dtb

import (
	"fmt"
	"os"
	"os/user"
)

// Identity is the (computer, account) pair of one physical machine.
type Identity struct {
	Computer string
	Account  string
}

func (i Identity) String() string {
	return fmt.Sprintf("%s@%s", i.Account, i.Computer)
}

// IdentityRecord is one entry of a user's info file. A logical user that
// runs several machines has one record per machine.
type IdentityRecord struct {
	Computer  string `json:"computer"`
	Account   string `json:"username"`
	Downloads string `json:"downloads"`
}

// Identity returns the natural key of the record.
func (r IdentityRecord) Identity() Identity {
	return Identity{Computer: r.Computer, Account: r.Account}
}

// IdentitySource reports the identity of the machine executing the code.
type IdentitySource interface {
	Current() (Identity, error)
}

// SystemIdentity reads the hostname and the logged-in account from the OS.
type SystemIdentity struct{}

func (SystemIdentity) Current() (Identity, error) {
	host, err := os.Hostname()
	if err != nil {
		return Identity{}, fmt.Errorf("reading hostname: %w", err)
	}
	u, err := user.Current()
	if err != nil {
		return Identity{}, fmt.Errorf("reading current account: %w", err)
	}
	return Identity{Computer: host, Account: u.Username}, nil
}
