// Package git reads repository metadata for scan reports.
package git

import (
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"

	"github.com/cloakscan/cloakscan/internal/types"
)

// RepoMetadata returns HEAD commit and branch for the work tree containing
// root, searching parent directories. It returns nil when root is not inside
// a repository or HEAD cannot be resolved (e.g. no commits yet).
func RepoMetadata(root string) *types.RepoInfo {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil
	}
	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil
	}
	info := &types.RepoInfo{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info
}
