package gitinfo

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

type Info struct {
	Commit          string `json:"commit"`
	CommitShort     string `json:"commit_short"`
	Message         string `json:"message"`
	Branch          string `json:"branch"`
	Tag             string `json:"tag"`
	RemoteURL       string `json:"remote_url"`
	Author          string `json:"author"`
	AuthorEmail     string `json:"author_email"`
	CommitTimestamp string `json:"commit_timestamp"`
}

// Collect gathers commit metadata for the repository containing dir.
// Every field degrades to an empty string when unavailable; a missing
// repository is not an error.
func Collect(dir string) Info {
	var info Info
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return info
	}
	head, err := repo.Head()
	if err != nil {
		return info
	}
	hash := head.Hash()
	info.Commit = hash.String()
	if len(info.Commit) >= 7 {
		info.CommitShort = info.Commit[:7]
	}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	} else {
		info.Branch = "HEAD"
	}
	if commit, err := repo.CommitObject(hash); err == nil {
		info.Message = subjectLine(commit.Message)
		info.Author = commit.Author.Name
		info.AuthorEmail = commit.Author.Email
		info.CommitTimestamp = commit.Author.When.Format(time.RFC3339)
	}
	info.Tag = exactTag(repo, hash)
	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		info.RemoteURL = remote.Config().URLs[0]
	}
	return info
}

// Marshal renders the manifest as the two-space indented JSON the
// backend tooling expects.
func Marshal(info Info) []byte {
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return []byte("{}")
	}
	return b
}

func (i Info) Empty() bool {
	return i.Commit == ""
}

func exactTag(repo *git.Repository, hash plumbing.Hash) string {
	iter, err := repo.Tags()
	if err != nil {
		return ""
	}
	var matches []string
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tag, err := repo.TagObject(ref.Hash()); err == nil {
			target = tag.Target
		}
		if target == hash {
			matches = append(matches, ref.Name().Short())
		}
		return nil
	})
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

func subjectLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimRight(line, "\r")
}
