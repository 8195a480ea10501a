package run

import "fmt"

// NotFoundError reports a selector matching no run.
type NotFoundError struct {
	Selector string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no run matches %q", e.Selector)
}

// AmbiguousError reports a selector matching more than one run.
type AmbiguousError struct {
	Selector string
	Count    int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d runs match %q", e.Count, e.Selector)
}

// FindOne looks up exactly one run under home whose ID has selector as
// a prefix. Zero or multiple matches are errors, never silently
// resolved.
func FindOne(home, selector string) (*Run, error) {
	if selector == "" {
		return nil, &NotFoundError{Selector: selector}
	}
	runs, err := List(home)
	if err != nil {
		return nil, err
	}
	var matches []*Run
	for _, r := range runs {
		if len(r.ID) >= len(selector) && r.ID[:len(selector)] == selector {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Selector: selector}
	case 1:
		return matches[0], nil
	default:
		return nil, &AmbiguousError{Selector: selector, Count: len(matches)}
	}
}

// FindAll resolves each selector with FindOne. An empty selector list
// means all runs.
func FindAll(home string, selectors []string) ([]*Run, error) {
	if len(selectors) == 0 {
		return List(home)
	}
	runs := make([]*Run, 0, len(selectors))
	for _, sel := range selectors {
		r, err := FindOne(home, sel)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}
