package executor

// agentScript installs the in-page execution agent. The agent is the
// registered listener the relay talks to: it receives one command object
// and answers {status, message}. Re-injecting this script is how a lost
// execution context is re-established after a navigation.
//
// Value writes dispatch synthetic input and change events so reactive
// frameworks observe the mutation, matching what a real user edit produces.
const agentScript = `(() => {
	if (window.__pilotAgent) return;

	function reply(status, message) {
		return { status: status, message: String(message == null ? '' : message) };
	}

	function fireInputEvents(el) {
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	}

	function setValue(el, value) {
		if (!('value' in el) && !el.isContentEditable) {
			return reply('error', 'element is not editable');
		}
		el.focus();
		if (el.isContentEditable) {
			el.textContent = value;
		} else {
			el.value = value;
		}
		fireInputEvents(el);
		return reply('ok', 'typed ' + value.length + ' characters');
	}

	function resolveTarget(cmd) {
		if (cmd.selector) {
			const el = document.querySelector(cmd.selector);
			if (!el) return { error: reply('error', 'no element matches selector ' + cmd.selector) };
			return { el: el };
		}
		if (typeof cmd.px === 'number' && typeof cmd.py === 'number') {
			const el = document.elementFromPoint(cmd.px, cmd.py);
			if (!el) return { error: reply('error', 'no element at coordinates') };
			return { el: el };
		}
		return { error: reply('error', 'command has no target') };
	}

	window.__pilotAgent = {
		handle: function (cmd) {
			try {
				switch (cmd.action) {
				case 'click': {
					const t = resolveTarget(cmd);
					if (t.error) return t.error;
					t.el.scrollIntoView({ block: 'center', inline: 'center' });
					t.el.click();
					return reply('ok', 'clicked');
				}
				case 'type': {
					const t = resolveTarget(cmd);
					if (t.error) return t.error;
					t.el.scrollIntoView({ block: 'center', inline: 'center' });
					return setValue(t.el, cmd.value || '');
				}
				case 'scroll': {
					window.scrollBy({ top: cmd.amount, behavior: 'instant' });
					return reply('ok', 'scrolled ' + cmd.amount + 'px');
				}
				case 'scroll_to_element': {
					const t = resolveTarget(cmd);
					if (t.error) return t.error;
					t.el.scrollIntoView({ block: 'center', inline: 'center' });
					return reply('ok', 'scrolled to element');
				}
				case 'submit': {
					const t = resolveTarget(cmd);
					if (t.error) return t.error;
					const form = t.el.closest('form');
					if (!form) return reply('error', 'no enclosing form for selector ' + cmd.selector);
					if (form.requestSubmit) form.requestSubmit(); else form.submit();
					return reply('ok', 'form submitted');
				}
				case 'get_text': {
					const t = resolveTarget(cmd);
					if (t.error) return t.error;
					return reply('ok', (t.el.innerText || t.el.textContent || '').trim());
				}
				case 'get_value': {
					const t = resolveTarget(cmd);
					if (t.error) return t.error;
					return reply('ok', 'value' in t.el ? String(t.el.value) : '');
				}
				default:
					return reply('error', 'unknown action ' + cmd.action);
				}
			} catch (e) {
				return reply('error', e && e.message ? e.message : String(e));
			}
		}
	};
})()`
