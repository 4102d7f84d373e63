package jobup

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Outcome classifies the status of a request.
type Outcome string

const (
	OutcomeOK          Outcome = "OK"
	OutcomeRedirect    Outcome = "REDIRECT"
	OutcomeClientError Outcome = "CLIENT_ERROR"
	OutcomeNotFound    Outcome = "NOT_FOUND"
	// OutcomeSearchLimit is returned by the search endpoint once the result
	// window is exhausted. It ends a backfill, it is not a failure.
	OutcomeSearchLimit Outcome = "SEARCH_LIMIT_REACHED"
	OutcomeServerError Outcome = "SERVER_ERROR"
	OutcomeBadGateway  Outcome = "BAD_GATEWAY"
	OutcomeUnknown     Outcome = "UNKNOWN"
)

type statusPrefix struct {
	prefix  string
	outcome Outcome
}

// statusPrefixes is ordered longest prefix first so 502 wins over 5 and the
// empty prefix only matches when nothing else does.
var statusPrefixes = sortByLength([]statusPrefix{
	{"2", OutcomeOK},
	{"3", OutcomeRedirect},
	{"4", OutcomeClientError},
	{"404", OutcomeNotFound},
	{"422", OutcomeSearchLimit},
	{"5", OutcomeServerError},
	{"502", OutcomeBadGateway},
	{"", OutcomeUnknown},
})

func sortByLength(prefixes []statusPrefix) []statusPrefix {
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i].prefix) > len(prefixes[j].prefix)
	})
	return prefixes
}

// ClassifyStatus maps a textual status code to its outcome.
func ClassifyStatus(code string) Outcome {
	code = strings.TrimSpace(code)
	for _, p := range statusPrefixes {
		if strings.HasPrefix(code, p.prefix) {
			return p.outcome
		}
	}
	return OutcomeUnknown
}

// Classify maps an HTTP status code to its outcome.
func Classify(code int) Outcome {
	return ClassifyStatus(strconv.Itoa(code))
}

// StatusError reports a response whose status was not classified OK.
type StatusError struct {
	URL        string
	StatusCode int
	Outcome    Outcome
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jobup: %s: status %d (%s)", e.URL, e.StatusCode, e.Outcome)
}

// OutcomeOf extracts the classified outcome carried by err. A nil error is
// OK; errors that never reached a status are UNKNOWN.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Outcome
	}
	return OutcomeUnknown
}
