// Package viewrepo syncs git repositories holding the SQL view definitions
// that publish the unified fact table to analysts.
package viewrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"medallion/internal/common"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// Service clones and updates view repositories into a local cache.
type Service struct {
	cacheDir string
	token    string
}

// NewService creates a service caching under ~/.medallion/repos. The token,
// when non-empty, authenticates HTTPS remotes.
func NewService(token string) *Service {
	return &Service{cacheDir: cacheDirectory(), token: token}
}

// NewServiceAt creates a service with an explicit cache directory.
func NewServiceAt(cacheDir, token string) *Service {
	return &Service{cacheDir: cacheDir, token: token}
}

// Sync clones the repository on first use and fetches updates afterwards,
// then checks out the configured branch. Local-directory repositories (no git
// URL) need no sync.
func (s *Service) Sync(ctx context.Context, repo models.ViewRepository) error {
	if repo.GitURL == "" {
		if _, err := os.Stat(repo.Path); err != nil {
			return errors.Wrap(err, errors.ErrCodeRepoNotFound,
				fmt.Sprintf("View directory %s does not exist", repo.Path)).
				WithContext("repository", repo.Name)
		}
		return nil
	}

	localPath := s.LocalPath(repo.Name)

	err := errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
		if err := s.cloneOrFetch(repo.GitURL, localPath); err != nil {
			msg := err.Error()
			if strings.Contains(msg, "connection") ||
				strings.Contains(msg, "timeout") ||
				strings.Contains(msg, "unreachable") {
				return errors.New(errors.ErrCodeNetworkUnavailable,
					"Network error while syncing view repository").
					WithContext("repository", repo.Name).
					WithContext("url", repo.GitURL).
					AsRecoverable()
			}

			if strings.Contains(msg, "authentication") || strings.Contains(msg, "authorization") {
				return errors.New(errors.ErrCodeRepoAccessDenied,
					"Authentication failed for view repository").
					WithContext("repository", repo.Name).
					WithSuggestions(
						"Check your git credentials",
						"Store a token with 'medallion setup'",
					)
			}

			return errors.Wrap(err, errors.ErrCodeRepoSyncFailed,
				fmt.Sprintf("Failed to sync view repository %s", repo.Name))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if repo.Branch != "" && repo.Branch != "main" && repo.Branch != "master" {
		if err := checkoutBranch(localPath, repo.Branch); err != nil {
			return errors.Wrap(err, errors.ErrCodeRepoSyncFailed,
				fmt.Sprintf("Failed to checkout branch %s", repo.Branch)).
				WithContext("branch", repo.Branch).
				WithSuggestions(fmt.Sprintf("Verify branch '%s' exists on the remote", repo.Branch))
		}
	}

	return nil
}

// SQLDirectory returns the directory containing the repository's view
// definitions: the synced worktree for git repositories (honoring the
// configured sub-path), or the path itself for local directories.
func (s *Service) SQLDirectory(repo models.ViewRepository) (string, error) {
	if repo.GitURL == "" {
		cleaned, err := common.CleanPath(repo.Path)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeFileNotFound, "Invalid view directory path").
				WithContext("path", repo.Path)
		}
		if _, err := os.Stat(cleaned); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeRepoNotFound,
				fmt.Sprintf("View directory %s does not exist", repo.Path))
		}
		return cleaned, nil
	}

	dir := s.LocalPath(repo.Name)
	if repo.Path != "" {
		validated, err := common.ValidatePath(filepath.Join(dir, repo.Path), dir)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeFileNotFound, "Invalid view repository path").
				WithContext("path", repo.Path)
		}
		dir = validated
	}

	if _, err := os.Stat(dir); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeRepoNotFound,
			fmt.Sprintf("View repository %s is not synced", repo.Name)).
			WithSuggestions("Run 'medallion deploy-views' to sync repositories first")
	}

	return dir, nil
}

// ListSQLFiles returns the repository's SQL files in deterministic name order.
func (s *Service) ListSQLFiles(repo models.ViewRepository) ([]string, error) {
	dir, err := s.SQLDirectory(repo)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read view directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".sql") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LocalPath returns the cache path for a repository name.
func (s *Service) LocalPath(repoName string) string {
	safeName := strings.ReplaceAll(repoName, "/", "_")
	safeName = strings.ReplaceAll(safeName, "\\", "_")
	return filepath.Join(s.cacheDir, safeName)
}

func (s *Service) cloneOrFetch(gitURL, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), common.DirPermissionNormal); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	if _, err := os.Stat(filepath.Join(localPath, ".git")); err == nil {
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repository: %w", err)
		}

		remote, err := repo.Remote("origin")
		if err != nil {
			return fmt.Errorf("failed to get remote: %w", err)
		}

		err = remote.Fetch(&git.FetchOptions{Auth: s.authMethod(gitURL)})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return fmt.Errorf("failed to fetch updates: %w", err)
		}
		return nil
	}

	_, err := git.PlainClone(localPath, false, &git.CloneOptions{
		URL:  gitURL,
		Auth: s.authMethod(gitURL),
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	return nil
}

func (s *Service) authMethod(gitURL string) transport.AuthMethod {
	if strings.HasPrefix(gitURL, "git@") || strings.HasPrefix(gitURL, "ssh://") {
		sshKeyPath := filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
		if _, err := os.Stat(sshKeyPath); err == nil {
			if auth, err := ssh.NewPublicKeysFromFile("git", sshKeyPath, ""); err == nil {
				return auth
			}
		}
	}

	if strings.HasPrefix(gitURL, "https://") {
		if s.token != "" {
			return &http.BasicAuth{Username: "token", Password: s.token}
		}

		username := os.Getenv("GIT_USERNAME")
		password := os.Getenv("GIT_PASSWORD")
		if username != "" && password != "" {
			return &http.BasicAuth{Username: username, Password: password}
		}

		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			return &http.BasicAuth{Username: "token", Password: token}
		}
	}

	return nil
}

func checkoutBranch(repoPath, branchName string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	branchRef := plumbing.ReferenceName("refs/heads/" + branchName)
	if _, err := repo.Reference(branchRef, false); err == nil {
		return worktree.Checkout(&git.CheckoutOptions{Branch: branchRef})
	}

	// Create a local branch from the remote tracking ref when present.
	remoteRef := plumbing.ReferenceName("refs/remotes/origin/" + branchName)
	if ref, err := repo.Reference(remoteRef, false); err == nil {
		return worktree.Checkout(&git.CheckoutOptions{
			Branch: branchRef,
			Hash:   ref.Hash(),
			Create: true,
		})
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD: %w", err)
	}

	return worktree.Checkout(&git.CheckoutOptions{
		Branch: branchRef,
		Hash:   head.Hash(),
		Create: true,
	})
}

func cacheDirectory() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".medallion", "repos")
}
