package scripts

import (
	"strings"

	"github.com/ternarybob/pagekit/internal/models"
)

var staleMarkers = []string{
	StaleMessage,
	"Could not find object with given id",
	"Cannot find context with specified id",
	"Node with given id does not belong to the document",
	"No node with given id found",
	"Node is detached from document",
	"Execution context was destroyed",
}

var disconnectMarkers = []string{
	"target closed",
	"Target closed",
	"No target with given id",
	"Session with given id not found",
	"use of closed network connection",
	"websocket: close",
	"invalid context",
	"connection reset",
	"broken pipe",
}

var notInteractableMarkers = []string{
	"element is not editable",
	"not interactable",
	"is not focusable",
	"Element is not visible",
}

// Classify maps a CDP or in-page error message to an error kind.
// Anything unrecognised is a script failure when thrown from page code, other otherwise.
func Classify(msg string, thrown bool) models.ErrorKind {
	switch {
	case containsAny(msg, staleMarkers):
		return models.KindStale
	case strings.Contains(msg, NotFoundMessage):
		return models.KindNotFound
	case containsAny(msg, notInteractableMarkers):
		return models.KindNotInteractable
	case containsAny(msg, disconnectMarkers):
		return models.KindDisconnected
	case strings.Contains(msg, "unknown locator strategy"), strings.Contains(msg, "is not a valid selector"),
		strings.Contains(msg, "is not a valid XPath expression"):
		return models.KindInvalidLocator
	case thrown:
		return models.KindScript
	}
	return models.KindOther
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
