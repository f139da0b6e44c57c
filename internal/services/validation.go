package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// fieldMessages holds the user-facing message per "Field.tag". Role fields
// are keyed with a "Role." prefix.
var fieldMessages = map[string]string{
	"Title.min":           "Title must be at least 3 characters",
	"Title.max":           "Title must be at most 100 characters",
	"Description.min":     "Description must be at least 10 characters",
	"Description.max":     "Description must be at most 500 characters",
	"LongDescription.max": "Long description must be at most 5000 characters",
	"GitHubRepoURL.url":   "Must be a valid URL",
	"TimeCommitment":      "Please choose a time commitment",
	"TechStack":           "Add at least one technology",
	"Roles":               "Add at least one role",
	"MaxMembers":          "Max members must be at least 1",
	"Status":              "Invalid project status",
	"Role.Title":          "Role title is required",
	"Role.Description":    "Role description must be at most 500 characters",
	"Role.Count":          "Role count must be at least 1",
	"Bio":                 "Bio must be at most 500 characters",
	"Skills":              "List at most 30 skills of up to 50 characters each",
	"Major":               "Major must be at most 100 characters",
	"GraduationYear":      "Graduation year must be between 1950 and 2100",
}

// validationError converts the first failed rule of err into an
// InvalidInput error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("Invalid input.")
	}
	fe := verrs[0]

	field := fe.Field()
	if i := strings.Index(field, "["); i >= 0 {
		field = field[:i]
	}
	if strings.Contains(fe.Namespace(), ".Roles[") {
		field = "Role." + field
	}
	if msg, ok := fieldMessages[field+"."+fe.Tag()]; ok {
		return invalid(msg)
	}
	if msg, ok := fieldMessages[field]; ok {
		return invalid(msg)
	}
	return invalid("Invalid " + strings.ToLower(field) + ".")
}
