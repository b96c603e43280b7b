package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"rwalend/cmd/internal/passphrase"
	"rwalend/crypto"
	"rwalend/gateway/auth"
)

const (
	defaultPassEnv  = "RWALEND_KEYSTORE_PASSPHRASE"
	defaultKeystore = "account.keystore"
	defaultGateway  = "http://localhost:8080"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:], os.Stdout)
	case "address":
		err = runAddress(os.Args[2:], os.Stdout)
	case "sign":
		err = runSign(os.Args[2:], os.Stdout)
	case "call":
		err = runCall(os.Args[2:], os.Stdout)
	case "admin-token":
		err = runAdminToken(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: rwactl <command> [flags]

commands:
  keygen       create an encrypted account keystore
  address      print the account address of a keystore
  sign         print the signature headers for a gateway request
  call         sign and send a request to the gateway
  admin-token  mint an admin bearer token from the gateway HMAC secret`)
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use -force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "account keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "%s\n", key.PubKey().Address())
	return nil
}

func loadKey(fs *flag.FlagSet, args []string) (*crypto.PrivateKey, error) {
	keystorePath := fs.String("keystore", defaultKeystore, "Path to the account keystore")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	pass, err := passphrase.NewSource(*passEnv, "account keystore").Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	return key, nil
}

func runAddress(args []string, out io.Writer) error {
	key, err := loadKey(flag.NewFlagSet("address", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", key.PubKey().Address())
	return nil
}

type requestFlags struct {
	method *string
	path   *string
	body   *string
}

func bindRequestFlags(fs *flag.FlagSet) requestFlags {
	return requestFlags{
		method: fs.String("method", http.MethodPost, "HTTP method"),
		path:   fs.String("path", "", "Request path including query, e.g. /v1/cdp/open"),
		body:   fs.String("body", "", "Request body; @file reads it from a file"),
	}
}

func (f requestFlags) payload() ([]byte, error) {
	raw := *f.body
	if strings.HasPrefix(raw, "@") {
		return os.ReadFile(strings.TrimPrefix(raw, "@"))
	}
	return []byte(raw), nil
}

// canonicalPath normalises path the same way the gateway does before hashing.
func canonicalPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path required")
	}
	u, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return auth.CanonicalRequestPath(&http.Request{URL: u}), nil
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func signedHeaders(key *crypto.PrivateKey, f requestFlags, body []byte) (map[string]string, error) {
	path, err := canonicalPath(*f.path)
	if err != nil {
		return nil, err
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	return auth.SignedHeaders(key, strings.ToUpper(*f.method), path, body, time.Now(), nonce)
}

func runSign(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	req := bindRequestFlags(fs)
	key, err := loadKey(fs, args)
	if err != nil {
		return err
	}
	body, err := req.payload()
	if err != nil {
		return err
	}
	headers, err := signedHeaders(key, req, body)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s: %s\n", name, headers[name])
	}
	return nil
}

func runCall(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	req := bindRequestFlags(fs)
	gateway := fs.String("gateway", defaultGateway, "Gateway base URL")
	key, err := loadKey(fs, args)
	if err != nil {
		return err
	}
	body, err := req.payload()
	if err != nil {
		return err
	}
	headers, err := signedHeaders(key, req, body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequest(strings.ToUpper(*req.method), strings.TrimRight(*gateway, "/")+*req.path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		httpReq.Header.Set(name, value)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	fmt.Fprintf(out, "%s\n", resp.Status)
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}

func runAdminToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("admin-token", flag.ContinueOnError)
	secretEnv := fs.String("secret-env", "RWALEND_ADMIN_HMAC_SECRET", "Environment variable holding the gateway HMAC secret")
	scope := fs.String("scope", "rwalend:admin", "Space separated scopes to grant")
	issuer := fs.String("issuer", "", "Issuer claim")
	audience := fs.String("audience", "", "Audience claim")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("%s is not set", *secretEnv)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"scope": *scope,
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if *audience != "" {
		claims["aud"] = *audience
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
