package user

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// UniqueUsername derives a username from the user's name (first initial plus
// family name) and appends a numeric suffix until it is free.
func UniqueUsername(ctx context.Context, repo Repository, u *User) (string, error) {
	base := usernameBase(u)
	candidate := base
	for suffix := 2; ; suffix++ {
		taken, err := repo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, suffix)
	}
}

func usernameBase(u *User) string {
	first := strings.ToLower(strings.TrimSpace(u.FirstName))
	last := strings.ToLower(strings.TrimSpace(u.LastName))

	var b strings.Builder
	if first != "" {
		b.WriteByte(first[0])
	}
	for _, r := range last {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// ParseFullName splits a display name into first and last parts. "Smith,
// Mary" yields (Mary, Smith); otherwise the final word is taken as the
// family name.
func ParseFullName(fullName string) (firstName, lastName string) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return "", ""
	}

	if before, after, found := strings.Cut(fullName, ","); found {
		return strings.TrimSpace(after), strings.TrimSpace(before)
	}

	words := strings.Fields(fullName)
	if len(words) == 1 {
		return words[0], ""
	}
	return strings.Join(words[:len(words)-1], " "), words[len(words)-1]
}
