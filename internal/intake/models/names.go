package models

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxSlugLen bounds a slug so stored file names stay well under the 255-byte
// name limit of common filesystems once the person, sequence and extension
// suffixes are added.
const MaxSlugLen = 100

var (
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9-]`)
)

// FullName is the deduplication key of a person.
func FullName(firstName, lastName string) string {
	return firstName + " " + lastName
}

// SubmissionID is the external reference of the sequence-th submission by fullName.
func SubmissionID(fullName string, sequence int) string {
	return fullName + " " + strconv.Itoa(sequence)
}

// Slug lowercases name, turns whitespace runs into "-" and strips anything
// outside [a-z0-9-], then cuts the result to MaxSlugLen. It is used to name
// stored files, not to identify people: distinct full names may share a slug.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = nonSlugChars.ReplaceAllString(s, "")
	if len(s) > MaxSlugLen {
		s = strings.TrimRight(s[:MaxSlugLen], "-")
	}
	return s
}

// OwnsSlug reports whether fullName is the one spelling entitled to its bare
// slug: the slug's words capitalized and joined by single spaces ("Ann Lee"
// for ann-lee). Every other name sharing that slug is stored under a
// person-specific file name, so two people never race for the same file.
func OwnsSlug(fullName string) bool {
	slug := Slug(fullName)
	if slug == "" {
		return false
	}
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			return false
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") == fullName
}
