package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"onereply/api/internal/atoms"
)

const (
	mainBranch  = "main"
	replyFile   = "reply.json"
	emailDomain = "onereply.local"
)

// Content is one version of a ticket reply as committed to history.
type Content struct {
	Subject   string           `json:"subject"`
	Situation string           `json:"situation"`
	Guidance  string           `json:"guidance"`
	NextSteps string           `json:"nextsteps"`
	Atoms     atoms.DraftAtoms `json:"atoms"`
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Change struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Service keeps one git repository per ticket. Department drafts land on
// their own branch; assembled replies are committed to main.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func DraftBranch(department string) string {
	return "draft/" + department
}

func (s *Service) EnsureTicketRepo(ticketID, subject, author string) error {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(ticketID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	initial := Content{Subject: subject, Atoms: atoms.Empty()}
	if err := writeContent(repo, initial); err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	hash, err := worktree.Commit("Open ticket "+ticketID, &git.CommitOptions{Author: signature(author)})
	if err != nil {
		return fmt.Errorf("commit initial reply: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// RecordDraft commits a department's draft to its branch, creating the
// branch from main on first use.
func (s *Service) RecordDraft(ticketID, department string, content Content, author string) (CommitInfo, error) {
	message := fmt.Sprintf("Draft from %s", department)
	return s.commitTo(ticketID, DraftBranch(department), content, author, message, true)
}

// CommitReply records an assembled reply on main.
func (s *Service) CommitReply(ticketID string, content Content, author, message string) (CommitInfo, error) {
	return s.commitTo(ticketID, mainBranch, content, author, message, true)
}

func (s *Service) commitTo(ticketID, branchName string, content Content, author, message string, allowEmpty bool) (CommitInfo, error) {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ticketID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	if err := checkoutBranch(repo, branchName); err != nil {
		return CommitInfo{}, err
	}
	if err := writeContent(repo, content); err != nil {
		return CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author:            signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit reply: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func (s *Service) GetHeadReply(ticketID string) (Content, CommitInfo, error) {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ticketID))
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("resolve main: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}
	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

func (s *Service) GetReplyByHash(ticketID, hash string) (Content, error) {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ticketID))
	if err != nil {
		return Content{}, fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

// History lists commits on branchName newest first; an empty branch name
// means main.
func (s *Service) History(ticketID, branchName string, limit int) ([]CommitInfo, error) {
	if branchName == "" {
		branchName = mainBranch
	}
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ticketID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// TagAssembled marks a commit as the reply that went out.
func (s *Service) TagAssembled(ticketID, hash string) error {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ticketID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}
	_, err = repo.CreateTag("assembled-"+hash, resolvedHash, &git.CreateTagOptions{
		Tagger:  signature("OneReply"),
		Message: "assembled reply",
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// Remove deletes a ticket's repository.
func (s *Service) Remove(ticketID string) error {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(s.repoPath(ticketID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(ticketID string) string {
	return filepath.Join(s.baseDir, ticketID)
}

func (s *Service) ticketLock(ticketID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[ticketID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[ticketID] = lock
	return lock
}

func writeContent(repo *git.Repository, content Content) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), replyFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", replyFile, err)
	}
	if _, err := worktree.Add(replyFile); err != nil {
		return fmt.Errorf("git add reply: %w", err)
	}
	return nil
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			mainRef, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
			if err != nil {
				return fmt.Errorf("resolve main: %w", err)
			}
			if err := worktree.Checkout(&git.CheckoutOptions{Hash: mainRef.Hash(), Branch: branchRef, Create: true, Force: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(replyFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", replyFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open reply reader: %w", err)
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read reply bytes: %w", err)
	}
	var content Content
	if err := json.Unmarshal(payload, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit reply: %w", err)
	}
	return content, nil
}

// Diff lists the rendered topics that differ between two versions.
func Diff(from, to Content) []Change {
	pairs := []Change{
		{Field: "subject", Before: from.Subject, After: to.Subject},
		{Field: string(atoms.TopicSituation), Before: from.Situation, After: to.Situation},
		{Field: string(atoms.TopicGuidance), Before: from.Guidance, After: to.Guidance},
		{Field: string(atoms.TopicNextSteps), Before: from.NextSteps, After: to.NextSteps},
	}
	result := make([]Change, 0)
	for _, item := range pairs {
		if item.Before != item.After {
			result = append(result, item)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Field < result[j].Field
	})
	return result
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	if author == "" {
		author = "OneReply"
	}
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@%s", sanitizeEmail(author), emailDomain),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
