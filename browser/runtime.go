package browser

// runtimeJS installs the page-side registry every Tree call goes through.
// Each node gets a positive integer handle the first time it crosses the
// protocol; the same node always maps back to the same handle. Handles
// keep their node alive for the life of the page.
const runtimeJS = `() => {
	if (window.__domshift) return;
	const ids = new WeakMap();
	const nodes = new Map();
	let next = 0;
	window.__domshift = {
		id(n) {
			if (!n) return 0;
			let i = ids.get(n);
			if (!i) {
				i = ++next;
				ids.set(n, i);
				nodes.set(i, n);
			}
			return i;
		},
		get(i) {
			if (!i) return null;
			const n = nodes.get(i);
			if (!n) throw new Error("domshift: unknown node handle " + i);
			return n;
		},
		scope(i) { return i ? this.get(i) : document; },
		ids(list) { return JSON.stringify(Array.from(list, (n) => this.id(n))); },
		observers: new Map(),
		watchers: new Map(),
		seq: 0,
	};
}`

const (
	bindingMutation = "__domshift_mutation"
	bindingResize   = "__domshift_resize"
	bindingVisible  = "__domshift_visible"
)

// listenersJS forwards viewport changes to the resize binding.
const listenersJS = `() => {
	if (window.__domshift_listening) return;
	window.__domshift_listening = true;
	const report = () => window.` + bindingResize + `(JSON.stringify({width: window.innerWidth, height: window.innerHeight}));
	window.addEventListener("resize", report);
}`
