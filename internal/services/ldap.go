package services

import (
	"crypto/tls"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/gradelens/gradelens/internal/config"
)

// LDAPUser is the directory entry of an authenticated user.
type LDAPUser struct {
	DN       string
	Username string
	Email    string
	Nickname string
}

// LDAPService authenticates course staff against a university directory.
type LDAPService struct {
	cfg *config.LDAPConfig
}

func NewLDAPService(cfg *config.LDAPConfig) *LDAPService {
	return &LDAPService{cfg: cfg}
}

func (s *LDAPService) IsEnabled() bool {
	return s.cfg.Enabled
}

// Authenticate verifies username/password against the directory and returns
// the matched entry. The flow is the usual search-then-bind: an optional
// service bind, a filtered search that must match exactly one entry, then a
// bind as that entry with the supplied password.
func (s *LDAPService) Authenticate(username, password string) (*LDAPUser, error) {
	if !s.cfg.Enabled {
		return nil, fmt.Errorf("LDAP is not enabled")
	}

	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	if s.cfg.BindDN != "" {
		if err := conn.Bind(s.cfg.BindDN, s.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind with service account: %w", err)
		}
	}

	entry, err := s.findUser(conn, username)
	if err != nil {
		return nil, err
	}

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	user := &LDAPUser{
		DN:       entry.DN,
		Username: entry.GetAttributeValue("uid"),
		Email:    entry.GetAttributeValue("mail"),
		Nickname: entry.GetAttributeValue("cn"),
	}
	if user.Username == "" {
		// Active Directory
		user.Username = entry.GetAttributeValue("sAMAccountName")
	}
	return user, nil
}

func (s *LDAPService) dial() (*ldap.Conn, error) {
	scheme := "ldap"
	if s.cfg.UseSSL {
		scheme = "ldaps"
	}
	addr := fmt.Sprintf("%s://%s:%d", scheme, s.cfg.Host, s.cfg.Port)
	return ldap.DialURL(addr, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
}

func (s *LDAPService) findUser(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	filter := fmt.Sprintf(s.cfg.UserFilter, ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		s.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"dn", "cn", "mail", "uid", "sAMAccountName"},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}

	switch len(result.Entries) {
	case 0:
		return nil, fmt.Errorf("user not found in LDAP")
	case 1:
		return result.Entries[0], nil
	default:
		return nil, fmt.Errorf("ambiguous LDAP search: %d entries match", len(result.Entries))
	}
}
