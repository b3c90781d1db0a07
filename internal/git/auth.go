package git

import (
	"fmt"
	"os"
	"path/filepath"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// AuthMethod builds a go-git transport auth method from repository auth
// configuration. Returns nil for public repositories. Shared with the branch
// publisher, which pushes over the same transports.
func AuthMethod(auth *appcfg.AuthConfig) (transport.AuthMethod, error) {
	if auth.IsZero() {
		return nil, nil
	}

	switch auth.Type {
	case appcfg.AuthTypeSSH:
		keyPath := auth.KeyPath
		if keyPath == "" {
			keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
		}
		keys, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
		if err != nil {
			return nil, fmt.Errorf("loading SSH key from %s: %w", keyPath, err)
		}
		return keys, nil

	case appcfg.AuthTypeToken:
		if auth.Token == "" {
			return nil, fmt.Errorf("token authentication requires a token")
		}
		// Forges accept any non-empty username with a token password.
		return &http.BasicAuth{Username: "token", Password: auth.Token}, nil

	case appcfg.AuthTypeBasic:
		if auth.Username == "" || auth.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: auth.Username, Password: auth.Password}, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", auth.Type)
	}
}

// TokenAuth builds token-based HTTP auth from a raw token value.
func TokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "token", Password: token}
}
