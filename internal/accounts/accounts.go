// Package accounts reads and writes the accounts.json and proxy.txt inputs.
package accounts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bardlex/stobixd/internal/wallet"
	"github.com/bardlex/stobixd/pkg/errors"
)

// Account is one entry of accounts.json. Either PrivateKey or Mnemonic
// (with the BIP-44 address Index) supplies the key.
type Account struct {
	WalletAddress string `json:"walletAddress"`
	PrivateKey    string `json:"privateKey,omitempty"`
	Mnemonic      string `json:"mnemonic,omitempty"`
	Index         uint32 `json:"index,omitempty"`
}

// Open derives the signer and checks that it owns WalletAddress
func (a Account) Open() (*wallet.Wallet, error) {
	var (
		w   *wallet.Wallet
		err error
	)
	switch {
	case a.PrivateKey != "":
		w, err = wallet.FromPrivateKey(a.PrivateKey)
	case a.Mnemonic != "":
		w, err = wallet.FromMnemonic(a.Mnemonic, a.Index)
	default:
		return nil, errors.New(errors.ErrorTypeWallet, "open_account", "account has no private key or mnemonic").
			WithContext("wallet", a.WalletAddress)
	}
	if err != nil {
		return nil, err
	}

	if !w.Matches(a.WalletAddress) {
		return nil, errors.New(errors.ErrorTypeWallet, "open_account", "private key does not match wallet address").
			WithContext("wallet", a.WalletAddress).
			WithContext("derived", w.Address())
	}
	return w, nil
}

// Load reads a JSON array of accounts
func Load(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "load_accounts", "failed to read accounts file").
			WithContext("path", path)
	}

	var list []Account
	if len(bytes.TrimSpace(data)) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "load_accounts", "malformed accounts file").
			WithContext("path", path)
	}
	return list, nil
}

// Append adds accounts to the file at path, creating it when missing.
// An existing file that cannot be read or parsed is left untouched.
func Append(path string, added ...Account) error {
	existing, err := Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, errors.ErrorTypeValidation, "save_accounts",
			"refusing to overwrite unreadable accounts file").WithContext("path", path)
	}
	all := append(existing, added...)

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "save_accounts", "failed to encode accounts")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".accounts-*.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "save_accounts", "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeInternal, "save_accounts", "failed to write accounts")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "save_accounts", "failed to write accounts")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "save_accounts",
			fmt.Sprintf("failed to replace %s", path))
	}
	return nil
}

// LoadProxies reads one proxy URI per line, ignoring blank lines
func LoadProxies(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "load_proxies", "failed to read proxy file").
			WithContext("path", path)
	}

	var proxies []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			proxies = append(proxies, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "load_proxies", "failed to parse proxy file")
	}
	return proxies, nil
}
