// scopes.go — модель scope-записей токена и авторизация путей.
// Шесть видов scope транслируются в шесть наборов путей/префиксов:
// write, delete, write-archival — точные пути и префиксы.
package auth

import (
	"strings"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
)

// Виды scope, допустимые в токене.
const (
	ScopePutFile               = "putFile"
	ScopePutFilePrefix         = "putFilePrefix"
	ScopeDeleteFile            = "deleteFile"
	ScopeDeleteFilePrefix      = "deleteFilePrefix"
	ScopePutFileArchival       = "putFileArchival"
	ScopePutFileArchivalPrefix = "putFileArchivalPrefix"
)

// MaxScopeEntries — максимум scope-записей в одном токене.
const MaxScopeEntries = 8

// ScopeEntry — одна scope-запись payload'а токена.
type ScopeEntry struct {
	Scope  string `json:"scope"`
	Domain string `json:"domain"`
}

var validScopes = map[string]bool{
	ScopePutFile:               true,
	ScopePutFilePrefix:         true,
	ScopeDeleteFile:            true,
	ScopeDeleteFilePrefix:      true,
	ScopePutFileArchival:       true,
	ScopePutFileArchivalPrefix: true,
}

// ValidateScopeEntries проверяет количество и виды scope-записей.
func ValidateScopeEntries(entries []ScopeEntry) error {
	if len(entries) > MaxScopeEntries {
		return apierrors.Validation("too many authentication scopes, maximum %d", MaxScopeEntries)
	}
	for _, e := range entries {
		if !validScopes[e.Scope] {
			return apierrors.Validation("unrecognized scope %q", e.Scope)
		}
	}
	return nil
}

// Scopes — scope-записи токена, разложенные в шесть наборов путей.
type Scopes struct {
	WritePaths            []string
	WritePrefixes         []string
	DeletePaths           []string
	DeletePrefixes        []string
	WriteArchivalPaths    []string
	WriteArchivalPrefixes []string
}

// ParseScopes раскладывает scope-записи по наборам.
// Запись с неизвестным scope — ошибка валидации.
func ParseScopes(entries []ScopeEntry) (*Scopes, error) {
	if err := ValidateScopeEntries(entries); err != nil {
		return nil, err
	}

	s := &Scopes{}
	for _, e := range entries {
		switch e.Scope {
		case ScopePutFile:
			s.WritePaths = append(s.WritePaths, e.Domain)
		case ScopePutFilePrefix:
			s.WritePrefixes = append(s.WritePrefixes, e.Domain)
		case ScopeDeleteFile:
			s.DeletePaths = append(s.DeletePaths, e.Domain)
		case ScopeDeleteFilePrefix:
			s.DeletePrefixes = append(s.DeletePrefixes, e.Domain)
		case ScopePutFileArchival:
			s.WriteArchivalPaths = append(s.WriteArchivalPaths, e.Domain)
		case ScopePutFileArchivalPrefix:
			s.WriteArchivalPrefixes = append(s.WriteArchivalPrefixes, e.Domain)
		}
	}
	return s, nil
}

// ArchivalRestricted сообщает, действует ли archival-ограничение:
// любая write-archival запись переводит перезаписи и удаления в rename.
func (s *Scopes) ArchivalRestricted() bool {
	return len(s.WriteArchivalPaths) > 0 || len(s.WriteArchivalPrefixes) > 0
}

// ValidatePath — единственное правило санитарии пути: подстрока ".." запрещена.
func ValidatePath(p string) error {
	if strings.Contains(p, "..") {
		return apierrors.BadPath("path contains forbidden '..' segment")
	}
	return nil
}

// CheckWritePath проверяет право записи по пути p.
// Пустой набор write-scope означает «разрешён любой путь внутри bucket».
func (s *Scopes) CheckWritePath(p string) error {
	if err := ValidatePath(p); err != nil {
		return err
	}
	if err := s.checkArchival(p); err != nil {
		return err
	}
	if len(s.WritePaths) == 0 && len(s.WritePrefixes) == 0 {
		return nil
	}
	if matchPath(p, s.WritePaths, s.WritePrefixes) {
		return nil
	}
	return apierrors.Validation("path %q is not within the authorized write scopes", p)
}

// CheckDeletePath проверяет право удаления по пути p.
func (s *Scopes) CheckDeletePath(p string) error {
	if err := ValidatePath(p); err != nil {
		return err
	}
	if err := s.checkArchival(p); err != nil {
		return err
	}
	if len(s.DeletePaths) == 0 && len(s.DeletePrefixes) == 0 {
		return nil
	}
	if matchPath(p, s.DeletePaths, s.DeletePrefixes) {
		return nil
	}
	return apierrors.Validation("path %q is not within the authorized delete scopes", p)
}

// checkArchival: при archival-ограничении путь обязан попадать
// в write-archival набор.
func (s *Scopes) checkArchival(p string) error {
	if !s.ArchivalRestricted() {
		return nil
	}
	if matchPath(p, s.WriteArchivalPaths, s.WriteArchivalPrefixes) {
		return nil
	}
	return apierrors.Validation("path %q is not within the authorized archival scopes", p)
}

// matchPath — точное совпадение или префикс.
func matchPath(p string, paths, prefixes []string) bool {
	for _, exact := range paths {
		if p == exact {
			return true
		}
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
