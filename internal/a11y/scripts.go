package a11y

import (
	"encoding/json"
	"fmt"
)

// SnapshotScriptTemplate builds the accessibility tree for the current
// document. It is formatted with a single %d generation stamp before
// being handed to rod's Page.Eval, following the teacher's pattern of
// inlining call-specific values into a literal script with fmt.Sprintf
// rather than passing CDP call arguments (see runJSHandler's "wrapped"
// construction and the rod-based extractors under
// internal/infrastructure/browser in the pack's browser-agent example).
//
// Every interactive node is tagged with data-agentfox-ref/-gen
// attributes as it's assigned a reference; a previous generation's
// attributes are stripped up front, so a reference from an earlier
// snapshot can never resolve again even if the DOM coincidentally still
// contains an element at the same traversal position.
const SnapshotScriptTemplate = `() => {
  const GENERATION = %d;
  const DEPTH_CAP = 100;
  const NODE_CAP = 50000;
  const NAME_TRUNC = 200;

  let nodeCount = 0;
  let refCounter = 0;
  let truncated = false;

  document.querySelectorAll('[data-agentfox-ref]').forEach((el) => {
    el.removeAttribute('data-agentfox-ref');
    el.removeAttribute('data-agentfox-gen');
  });

  const INPUT_ROLE = {
    text: 'textbox', email: 'textbox', tel: 'textbox', url: 'textbox', password: 'textbox',
    search: 'searchbox', number: 'spinbutton', range: 'slider',
    checkbox: 'checkbox', radio: 'radio',
    submit: 'button', reset: 'button', button: 'button', image: 'button', file: 'button',
  };
  const TAG_ROLE = {
    BUTTON: 'button', NAV: 'navigation', MAIN: 'main', ASIDE: 'complementary',
    FOOTER: 'contentinfo', HEADER: 'banner', FORM: 'form', TABLE: 'table',
    TR: 'row', TD: 'cell', TH: 'columnheader', UL: 'list', OL: 'list',
    LI: 'listitem', DIALOG: 'dialog', IMG: 'img', OPTION: 'option',
  };
  const SKIP_TAGS = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'SVG', 'IFRAME']);
  const INTERACTIVE_TAGS = new Set(['A', 'BUTTON', 'INPUT', 'TEXTAREA', 'SELECT']);
  const INTERACTIVE_ROLES = new Set([
    'button', 'link', 'checkbox', 'radio', 'textbox', 'combobox', 'slider',
    'switch', 'tab', 'menuitem', 'menuitemcheckbox', 'menuitemradio',
    'option', 'treeitem', 'searchbox', 'spinbutton',
  ]);
  const NAME_FROM_CONTENT_TAGS = new Set(['A', 'BUTTON', 'H1', 'H2', 'H3', 'H4', 'H5', 'H6', 'LABEL', 'LEGEND', 'OPTION', 'LI', 'TD', 'TH']);

  function truncate(s, n) {
    if (!s) return s;
    return s.length > n ? s.slice(0, n) + '…' : s;
  }

  function textOf(el) {
    return (el.textContent || '').trim().replace(/\s+/g, ' ');
  }

  function labelledBy(el, attr) {
    const ids = (el.getAttribute(attr) || '').split(/\s+/).filter(Boolean);
    if (!ids.length) return '';
    return ids.map((id) => {
      const t = document.getElementById(id);
      return t ? textOf(t) : '';
    }).filter(Boolean).join(' ');
  }

  function labelFor(el) {
    if (el.id) {
      const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
      if (l) return l;
    }
    let p = el.parentElement;
    while (p) {
      if (p.tagName === 'LABEL') return p;
      p = p.parentElement;
    }
    return null;
  }

  function deriveRole(el) {
    const explicit = el.getAttribute('role');
    if (explicit) return explicit;
    const tag = el.tagName;
    if (/^H[1-6]$/.test(tag)) return 'heading';
    if (tag === 'A') return el.hasAttribute('href') ? 'link' : 'generic';
    if (tag === 'INPUT') {
      const type = (el.getAttribute('type') || 'text').toLowerCase();
      return INPUT_ROLE[type] || 'textbox';
    }
    if (tag === 'TEXTAREA') return 'textbox';
    if (tag === 'SELECT') return el.hasAttribute('multiple') ? 'listbox' : 'combobox';
    if (tag === 'SECTION') return accessibleName(el) ? 'region' : 'generic';
    if (tag === 'ARTICLE') return 'article';
    if (TAG_ROLE[tag]) return TAG_ROLE[tag];
    return 'generic';
  }

  function isInteractive(el, role) {
    if (INTERACTIVE_TAGS.has(el.tagName)) return true;
    if (el.hasAttribute('onclick') || el.hasAttribute('onmousedown')) return true;
    if (el.getAttribute('contenteditable') === 'true') return true;
    const tabindex = el.getAttribute('tabindex');
    if (tabindex !== null && Number(tabindex) >= 0) return true;
    if (INTERACTIVE_ROLES.has(role)) return true;
    return false;
  }

  function accessibleName(el) {
    const ariaLabel = el.getAttribute('aria-label');
    if (ariaLabel) return truncate(ariaLabel.trim(), NAME_TRUNC);

    const byLabelledby = labelledBy(el, 'aria-labelledby');
    if (byLabelledby) return truncate(byLabelledby, NAME_TRUNC);

    if (['INPUT', 'TEXTAREA', 'SELECT'].includes(el.tagName)) {
      const label = labelFor(el);
      if (label) {
        const clone = label.cloneNode(true);
        clone.querySelectorAll('input, textarea, select, button').forEach((n) => n.remove());
        const t = textOf(clone);
        if (t) return truncate(t, NAME_TRUNC);
      }
    }

    if (el.tagName === 'IMG') {
      const alt = el.getAttribute('alt');
      if (alt) return truncate(alt.trim(), NAME_TRUNC);
    }

    const title = el.getAttribute('title');
    if (title) return truncate(title.trim(), NAME_TRUNC);

    const role = deriveRole(el);
    if (NAME_FROM_CONTENT_TAGS.has(el.tagName) || role === 'button' || role === 'link') {
      const t = textOf(el);
      if (t) return truncate(t, NAME_TRUNC);
    }

    if (el.tagName === 'INPUT') {
      const type = (el.getAttribute('type') || 'text').toLowerCase();
      const placeholder = el.getAttribute('placeholder');
      if (placeholder && !['submit', 'reset', 'button'].includes(type)) {
        return truncate(placeholder.trim(), NAME_TRUNC);
      }
      if (['submit', 'reset', 'button'].includes(type)) {
        const value = el.getAttribute('value');
        if (value) return truncate(value.trim(), NAME_TRUNC);
      }
    }

    return '';
  }

  function extractState(el, role) {
    const state = {};
    const tag = el.tagName;
    if (tag === 'INPUT' && ['checkbox', 'radio'].includes((el.getAttribute('type') || '').toLowerCase())) {
      state.checked = el.checked;
    }
    if (['INPUT', 'SELECT', 'TEXTAREA', 'BUTTON'].includes(tag) && el.disabled) {
      state.disabled = true;
    }
    if (el.getAttribute('aria-disabled') === 'true') state.disabled = true;

    const expanded = el.getAttribute('aria-expanded');
    if (expanded !== null) state.expanded = expanded === 'true';

    if (tag === 'OPTION') state.selected = el.selected;
    const selected = el.getAttribute('aria-selected');
    if (selected !== null) state.selected = selected === 'true';

    if (['INPUT', 'SELECT', 'TEXTAREA'].includes(tag) && el.required) state.required = true;
    if (el.getAttribute('aria-required') === 'true') state.required = true;

    const describedBy = labelledBy(el, 'aria-describedby');
    if (describedBy) {
      state.description = describedBy;
    } else {
      const title = el.getAttribute('title');
      const name = accessibleName(el);
      if (title && title.trim() !== name) state.description = title.trim();
    }

    return state;
  }

  function formValue(el) {
    const tag = el.tagName;
    if (tag === 'INPUT' || tag === 'TEXTAREA') {
      const type = (el.getAttribute('type') || 'text').toLowerCase();
      if (!['checkbox', 'radio', 'submit', 'reset', 'button', 'file', 'image'].includes(type)) {
        return el.value;
      }
    }
    if (tag === 'SELECT') return el.value;
    return undefined;
  }

  function isHidden(el) {
    if (el.hasAttribute('hidden')) return true;
    if (el.getAttribute('aria-hidden') === 'true') return true;
    const style = getComputedStyle(el);
    if (style.display === 'none' || style.visibility === 'hidden') return true;
    if (el.tagName !== 'BODY' && el.tagName !== 'HTML' && el.offsetParent === null && style.position !== 'fixed') return true;
    return false;
  }

  function flattenGeneric(children) {
    const out = [];
    for (const child of children) {
      if (child.role === 'generic' && !child.ref && !child.name) {
        const grandchildren = child.children || [];
        if (grandchildren.length === 0) {
          continue;
        } else if (grandchildren.length === 1) {
          out.push(grandchildren[0]);
        } else {
          out.push(...grandchildren);
        }
      } else {
        out.push(child);
      }
    }
    return out;
  }

  function buildNode(el, depth) {
    if (truncated) return null;
    if (nodeCount >= NODE_CAP) { truncated = true; return null; }
    if (depth > DEPTH_CAP) return null;
    if (SKIP_TAGS.has(el.tagName)) return null;
    if (isHidden(el)) return null;

    const role = deriveRole(el);
    const name = accessibleName(el);
    const interactive = isInteractive(el, role);

    const node = { role: role, name: name };

    if (role === 'heading') {
      const m = /^H([1-6])$/.exec(el.tagName);
      if (m) node.level = Number(m[1]);
    }
    const value = formValue(el);
    if (value !== undefined) node.value = value;

    Object.assign(node, extractState(el, role));

    if (interactive) {
      node.ref = 'e' + refCounter;
      el.setAttribute('data-agentfox-ref', node.ref);
      el.setAttribute('data-agentfox-gen', String(GENERATION));
      refCounter++;
    }

    nodeCount++;

    const children = [];
    for (const child of el.childNodes) {
      if (truncated) break;
      if (child.nodeType === Node.ELEMENT_NODE) {
        const built = buildNode(child, depth + 1);
        if (built) children.push(built);
      } else if (child.nodeType === Node.TEXT_NODE) {
        const text = (child.textContent || '').trim().replace(/\s+/g, ' ');
        if (text && text !== name) {
          children.push({ role: 'text', name: truncate(text, NAME_TRUNC) });
        }
      }
    }

    node.children = flattenGeneric(children);
    return node;
  }

  const root = { role: 'document', name: document.title || '', children: [] };
  const bodyNode = document.body ? buildNode(document.body, 1) : null;
  if (bodyNode) {
    root.children = bodyNode.role === 'generic' ? (bodyNode.children || []) : [bodyNode];
  }
  if (truncated) {
    root.children.push({ role: 'text', name: '[snapshot truncated: exceeded 50000 nodes]' });
  }

  return { root: root, generation: GENERATION, nodeCount: nodeCount, truncated: truncated };
}`

// BuildScript formats SnapshotScriptTemplate with the generation stamp
// this build's references should carry.
func BuildScript(generation int) string {
	return fmt.Sprintf(SnapshotScriptTemplate, generation)
}

// ParseSnapshot decodes the JS snapshot script's return value (already
// JSON-marshaled by the caller from rod's gson.JSON result) into a
// Snapshot.
func ParseSnapshot(raw []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("a11y: decoding snapshot: %w", err)
	}
	return snap, nil
}

// RefSelector builds the CSS attribute selector used to resolve a
// reference back to a live element: it must match both the ref id and
// the generation it was assigned under, so a reference surviving from
// an earlier snapshot (by coincidence of traversal order) never
// resolves against the wrong element.
func RefSelector(ref string, generation int) string {
	return fmt.Sprintf(`[data-agentfox-ref=%q][data-agentfox-gen="%d"]`, ref, generation)
}
