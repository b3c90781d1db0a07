package git

import (
	"fmt"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// RemoteHead resolves the head commit of a branch on the remote without
// cloning. The scheduler uses this to skip runs when nothing changed since
// the last build.
func RemoteHead(repo appcfg.RepositoryConfig, branch string) (string, error) {
	if branch == "" {
		branch = repo.Branch
	}
	remote := git.NewRemote(memory.NewStorage(), &ggitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{repo.URL},
	})

	listOpts := &git.ListOptions{}
	auth, err := AuthMethod(repo.Auth)
	if err != nil {
		return "", classifyTransportError("ls-remote", repo.Name, err)
	}
	listOpts.Auth = auth

	refs, err := remote.List(listOpts)
	if err != nil {
		return "", classifyTransportError("ls-remote", repo.Name, err)
	}

	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Type() == plumbing.SymbolicReference {
			continue
		}
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}
	return "", fmt.Errorf("branch %s not found on remote %s", branch, repo.URL)
}
