// Package scripts holds the JavaScript both CDP drivers run inside the page.
//
// Element functions are called with `this` bound to the element and throw
// StaleMessage when the element has left the document, so drivers can map the
// exception to a stale reference without a second round trip.
package scripts

import "strings"

// StaleMessage is thrown by element functions for detached nodes
const StaleMessage = "stale element reference"

// NotFoundMessage is thrown when a script cannot find what it needs
const NotFoundMessage = "no such element"

const guard = `if (!this || !this.isConnected) { throw new Error('` + StaleMessage + `'); }`

// Function wraps a function body so `arguments` is bound the way callers expect
func Function(body string) string {
	return "function() {\n" + body + "\n}"
}

// element builds a function declaration whose body starts with the stale guard
func element(params, body string) string {
	return "function(" + params + ") {\n" + guard + "\n" + strings.TrimSpace(body) + "\n}"
}

// Find returns every match for strategy/value under `this`, or the document when
// `this` is not a node. The result is a plain array.
var Find = `function(strategy, value) {
	const root = (this && this.nodeType) ? this : document;
	if (root !== document && !root.isConnected) { throw new Error('` + StaleMessage + `'); }
	const all = (sel) => Array.from(root.querySelectorAll(sel));
	const text = (el) => (el.innerText || el.textContent || '').trim();
	switch (strategy) {
	case 'css':
		return all(value);
	case 'id':
		return all('[id="' + CSS.escape(value) + '"]');
	case 'name':
		return all('[name="' + CSS.escape(value) + '"]');
	case 'class':
		return all('.' + CSS.escape(value));
	case 'tag':
		return all(value);
	case 'link':
		return all('a').filter((a) => text(a) === value);
	case 'partial_link':
		return all('a').filter((a) => text(a).includes(value));
	case 'xpath': {
		const out = [];
		const res = document.evaluate(value, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < res.snapshotLength; i++) {
			const n = res.snapshotItem(i);
			if (n.nodeType === Node.ELEMENT_NODE) { out.push(n); }
		}
		return out;
	}
	}
	throw new Error('unknown locator strategy ' + strategy);
}`

// Length and Index walk the array Find returns
const (
	Length = `function() { return this.length; }`
	Index  = `function(i) { return this[i]; }`
)

var (
	Text = element("", `return (this.innerText !== undefined ? this.innerText : this.textContent || '').trim();`)

	Attribute = element("name", `
const present = this.hasAttribute(name);
return { present: present, value: present ? this.getAttribute(name) : '' };`)

	Property = element("name", `
const v = this[name];
if (v === null || v === undefined) { return ''; }
return typeof v === 'object' ? JSON.stringify(v) : String(v);`)

	CSSValue = element("prop", `return window.getComputedStyle(this).getPropertyValue(prop);`)

	TagName = element("", `return this.tagName.toLowerCase();`)

	// Rect is relative to the viewport; PageRect adds the scroll offset for clipped screenshots
	Rect = element("", `
const r = this.getBoundingClientRect();
return { x: r.x, y: r.y, width: r.width, height: r.height };`)

	PageRect = element("", `
const r = this.getBoundingClientRect();
return { x: r.x + window.scrollX, y: r.y + window.scrollY, width: r.width, height: r.height };`)

	IsDisplayed = element("", `
let el = this;
if (el.tagName === 'OPTION' || el.tagName === 'OPTGROUP') {
	el = el.closest('select') || el;
}
for (let n = el; n && n.nodeType === Node.ELEMENT_NODE; n = n.parentElement) {
	const s = window.getComputedStyle(n);
	if (s.display === 'none' || s.visibility === 'hidden' || s.visibility === 'collapse') { return false; }
	if (parseFloat(s.opacity) === 0 && n === el) { return false; }
}
if (el.type === 'hidden' && el.tagName === 'INPUT') { return false; }
const r = el.getBoundingClientRect();
return r.width > 0 && r.height > 0;`)

	IsEnabled = element("", `
if (this.disabled === true) { return false; }
const fs = this.closest('fieldset[disabled]');
return !(fs && !fs.querySelector('legend')?.contains(this));`)

	IsSelected = element("", `
if (this.tagName === 'OPTION') { return this.selected === true; }
return this.checked === true;`)

	ScrollIntoView = element("", `this.scrollIntoView({ block: 'center', inline: 'center' });`)

	Focus = element("", `this.focus();`)

	Clear = element("", `
if (this.readOnly || this.disabled) { throw new Error('element is not editable'); }
if (this.isContentEditable) { this.textContent = ''; }
else { this.value = ''; }
this.dispatchEvent(new Event('input', { bubbles: true }));
this.dispatchEvent(new Event('change', { bubbles: true }));`)

	Submit = element("", `
const form = this.tagName === 'FORM' ? this : this.form;
if (!form) { throw new Error('` + NotFoundMessage + `: element is not in a form'); }
const ev = new Event('submit', { bubbles: true, cancelable: true });
if (form.dispatchEvent(ev)) { form.submit(); }`)
)

// ActiveElement returns the focused element or null
const ActiveElement = `function() { return document.activeElement; }`
