package wait

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

const readyStateScript = `return document.readyState;`

// pendingRequestsScript is best-effort: pages without jQuery or Angular report idle
const pendingRequestsScript = `
try {
	if (window.jQuery && window.jQuery.active > 0) { return false; }
	if (window.angular && window.angular.element) {
		var root = document.querySelector('[ng-app]') || document.body;
		var injector = window.angular.element(root).injector();
		if (injector && injector.get('$http').pendingRequests.length > 0) { return false; }
	}
	if (typeof window.getAllAngularTestabilities === 'function') {
		var testabilities = window.getAllAngularTestabilities();
		for (var i = 0; i < testabilities.length; i++) {
			if (!testabilities[i].isStable()) { return false; }
		}
	}
	return true;
} catch (e) {
	return true;
}`

// FindFirst returns the first match for loc or a KindNotFound error
func FindFirst(ctx context.Context, d interfaces.Driver, scope interfaces.RemoteRef, loc models.Locator) (interfaces.RemoteRef, error) {
	refs, err := d.FindElements(ctx, scope, loc)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, models.NewDriverError(models.KindNotFound, "find "+loc.String(), nil)
	}
	interfaces.Release(ctx, d, refs[1:]...)
	return refs[0], nil
}

// DocumentReady holds once document.readyState is "complete"
func DocumentReady() Condition {
	return Condition{
		Name: "document ready",
		Kind: "document_ready",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			state, err := d.ExecuteScript(ctx, readyStateScript)
			if err != nil {
				return false, err
			}
			return state == "complete", nil
		},
	}
}

// NoPendingRequests holds when jQuery and Angular report no in-flight work.
// A script failure counts as satisfied.
func NoPendingRequests() Condition {
	return Condition{
		Name: "no pending requests",
		Kind: "pending_requests",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			idle, err := d.ExecuteScript(ctx, pendingRequestsScript)
			if err != nil {
				if models.KindOf(err) == models.KindScript {
					return true, nil
				}
				return false, err
			}
			b, ok := idle.(bool)
			return !ok || b, nil
		},
	}
}

// ScriptTrue holds once script returns a truthy boolean
func ScriptTrue(name, script string, args ...any) Condition {
	return Condition{
		Name: name,
		Kind: "script",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			v, err := d.ExecuteScript(ctx, script, args...)
			if err != nil {
				return false, err
			}
			b, _ := v.(bool)
			return b, nil
		},
	}
}

func TitleContains(fragment string) Condition {
	return Condition{
		Name: fmt.Sprintf("title containing %q", fragment),
		Kind: "title",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			title, err := d.Title(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(title, fragment), nil
		},
	}
}

func URLContains(fragment string) Condition {
	return Condition{
		Name: fmt.Sprintf("url containing %q", fragment),
		Kind: "url",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			u, err := d.CurrentURL(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(u, fragment), nil
		},
	}
}

func URLToBe(want string) Condition {
	return Condition{
		Name: fmt.Sprintf("url to be %q", want),
		Kind: "url",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			u, err := d.CurrentURL(ctx)
			if err != nil {
				return false, err
			}
			return u == want, nil
		},
	}
}

// PresenceOf holds once at least one element matches loc
func PresenceOf(loc models.Locator) Condition {
	return Condition{
		Name: "presence of " + loc.String(),
		Kind: "presence",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			ref, err := FindFirst(ctx, d, nil, loc)
			if err != nil {
				return false, err
			}
			interfaces.Release(ctx, d, ref)
			return true, nil
		},
	}
}

// VisibilityOf holds once the first match for loc is displayed
func VisibilityOf(loc models.Locator) Condition {
	return Condition{
		Name: "visibility of " + loc.String(),
		Kind: "visibility",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			ref, err := FindFirst(ctx, d, nil, loc)
			if err != nil {
				return false, err
			}
			defer interfaces.Release(ctx, d, ref)
			return d.IsDisplayed(ctx, ref)
		},
	}
}

// ClickableOf holds once the first match for loc is displayed and enabled
func ClickableOf(loc models.Locator) Condition {
	return Condition{
		Name: "clickability of " + loc.String(),
		Kind: "clickable",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			ref, err := FindFirst(ctx, d, nil, loc)
			if err != nil {
				return false, err
			}
			defer interfaces.Release(ctx, d, ref)
			return Clickable(ctx, d, ref)
		},
	}
}

// InvisibilityOf holds when nothing matches loc or the first match is hidden or gone
func InvisibilityOf(loc models.Locator) Condition {
	return Condition{
		Name: "invisibility of " + loc.String(),
		Kind: "invisibility",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			ref, err := FindFirst(ctx, d, nil, loc)
			if models.IsNotFound(err) {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			defer interfaces.Release(ctx, d, ref)
			shown, err := d.IsDisplayed(ctx, ref)
			if models.IsStale(err) {
				return true, nil
			}
			return !shown, err
		},
	}
}

// TextPresentIn holds once the first match for loc contains text
func TextPresentIn(loc models.Locator, text string) Condition {
	return Condition{
		Name: fmt.Sprintf("text %q in %s", text, loc),
		Kind: "text",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			ref, err := FindFirst(ctx, d, nil, loc)
			if err != nil {
				return false, err
			}
			defer interfaces.Release(ctx, d, ref)
			got, err := d.Text(ctx, ref)
			if err != nil {
				return false, err
			}
			return strings.Contains(got, text), nil
		},
	}
}

// AllVisible holds once loc matches at least one element and every match is displayed
func AllVisible(loc models.Locator) Condition {
	return Condition{
		Name: "visibility of all " + loc.String(),
		Kind: "all_visible",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			refs, err := d.FindElements(ctx, nil, loc)
			if err != nil {
				return false, err
			}
			if len(refs) == 0 {
				return false, nil
			}
			defer interfaces.Release(ctx, d, refs...)
			for _, ref := range refs {
				shown, err := d.IsDisplayed(ctx, ref)
				if err != nil || !shown {
					return false, err
				}
			}
			return true, nil
		},
	}
}

// CountAtLeast holds once loc matches n or more elements
func CountAtLeast(loc models.Locator, n int) Condition {
	return Condition{
		Name: fmt.Sprintf("at least %d of %s", n, loc),
		Kind: "count",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			refs, err := d.FindElements(ctx, nil, loc)
			if err != nil {
				return false, err
			}
			interfaces.Release(ctx, d, refs...)
			return len(refs) >= n, nil
		},
	}
}

// WindowCountAtLeast holds once n or more windows or tabs are open
func WindowCountAtLeast(n int) Condition {
	return Condition{
		Name: fmt.Sprintf("at least %d windows", n),
		Kind: "windows",
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			handles, err := d.WindowHandles(ctx)
			if err != nil {
				return false, err
			}
			return len(handles) >= n, nil
		},
	}
}

// Clickable reports whether ref is displayed and enabled
func Clickable(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) (bool, error) {
	shown, err := d.IsDisplayed(ctx, ref)
	if err != nil || !shown {
		return false, err
	}
	return d.IsEnabled(ctx, ref)
}
