package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/your-org/ema/internal/apperr"
)

const maxFolderRunes = 120

// Resolver owns the id -> folder mapping of a repository. A mapping, once made,
// is never recomputed from the person's current name.
type Resolver struct {
	root string

	mu     sync.RWMutex
	byID   map[uuid.UUID]string
	byName map[string]uuid.UUID // lower-cased folder -> owner, uuid.Nil if unowned
}

func NewResolver(root string) *Resolver {
	return &Resolver{
		root:   root,
		byID:   make(map[uuid.UUID]string),
		byName: make(map[string]uuid.UUID),
	}
}

// SanitizeName turns a display name into a folder name. Path separators,
// control characters, whitespace and characters reserved on common filesystems
// become underscores.
func SanitizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", apperr.New(apperr.InvalidName, "person name is empty")
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r), unicode.IsControl(r), strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	folder := b.String()

	// Leading dots would hide the folder from listings.
	if strings.HasPrefix(folder, ".") {
		folder = "_" + strings.TrimLeft(folder, ".")
	}
	folder = strings.TrimRight(folder, ". ")

	if runes := []rune(folder); len(runes) > maxFolderRunes {
		folder = string(runes[:maxFolderRunes])
	}
	if strings.Trim(folder, "_") == "" {
		return "", apperr.Newf(apperr.InvalidName, "person name %q has no usable characters", name)
	}
	return folder, nil
}

// Resolve returns the folder for id, assigning one from name on first use. A
// new assignment never reuses a folder held by another person or present on disk.
func (r *Resolver) Resolve(id uuid.UUID, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if folder, ok := r.byID[id]; ok {
		return folder, nil
	}

	base, err := SanitizeName(name)
	if err != nil {
		return "", err
	}

	candidate := base
	for n := 2; ; n++ {
		taken, err := r.takenLocked(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		candidate = base + "_" + strconv.Itoa(n)
	}

	r.byID[id] = candidate
	r.byName[strings.ToLower(candidate)] = id
	return candidate, nil
}

func (r *Resolver) takenLocked(folder string) (bool, error) {
	if _, ok := r.byName[strings.ToLower(folder)]; ok {
		return true, nil
	}
	_, err := os.Lstat(filepath.Join(r.root, folder))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.IO, fmt.Sprintf("stat folder %s", folder), err)
	}
	return true, nil
}

// Folder returns the assigned folder for id.
func (r *Resolver) Folder(id uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	folder, ok := r.byID[id]
	return folder, ok
}

// Assign records an existing on-disk association.
func (r *Resolver) Assign(id uuid.UUID, folder string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = folder
	r.byName[strings.ToLower(folder)] = id
}

// Reserve marks a folder as occupied without an owner, e.g. one whose metadata
// could not be read.
func (r *Resolver) Reserve(folder string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[strings.ToLower(folder)]; !ok {
		r.byName[strings.ToLower(folder)] = uuid.Nil
	}
}

// Release forgets id and frees its folder name.
func (r *Resolver) Release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if folder, ok := r.byID[id]; ok {
		delete(r.byName, strings.ToLower(folder))
		delete(r.byID, id)
	}
}

// Reset drops every mapping; used before a full rescan.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[uuid.UUID]string)
	r.byName = make(map[string]uuid.UUID)
}

func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
