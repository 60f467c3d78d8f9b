package mb

import "fmt"

// Proxy is the static capability descriptor owned by a task: which
// messages the task may read and which it may post. Read and post access
// to the same message conflict. Worker threads never share a Proxy's
// mutable state; each worker mints its own Client.
type Proxy struct {
	mgr     *Manager
	mayRead map[string]struct{}
	mayPost map[string]struct{}
}

// NewProxy creates a proxy with no capabilities
func NewProxy(mgr *Manager) *Proxy {
	return &Proxy{
		mgr:     mgr,
		mayRead: make(map[string]struct{}),
		mayPost: make(map[string]struct{}),
	}
}

// AllowRead grants read access to a message type. Granting read on a
// message with post access fails. Granting twice is a no-op.
func (p *Proxy) AllowRead(msgName string) error {
	if _, ok := p.mayRead[msgName]; ok {
		return nil
	}
	if _, ok := p.mayPost[msgName]; ok {
		return fmt.Errorf("message %q: cannot read and post the same message: %w",
			msgName, ErrInvalidOperation)
	}
	if !p.mgr.Exists(msgName) {
		return fmt.Errorf("message %q: %w", msgName, ErrUnknownMessage)
	}
	p.mayRead[msgName] = struct{}{}
	return nil
}

// AllowPost grants post access to a message type. Granting post on a
// message with read access fails. Granting twice is a no-op.
func (p *Proxy) AllowPost(msgName string) error {
	if _, ok := p.mayPost[msgName]; ok {
		return nil
	}
	if _, ok := p.mayRead[msgName]; ok {
		return fmt.Errorf("message %q: cannot read and post the same message: %w",
			msgName, ErrInvalidOperation)
	}
	if !p.mgr.Exists(msgName) {
		return fmt.Errorf("message %q: %w", msgName, ErrUnknownMessage)
	}
	p.mayPost[msgName] = struct{}{}
	return nil
}

// CanRead reports whether read capability has been granted
func (p *Proxy) CanRead(msgName string) bool {
	_, ok := p.mayRead[msgName]
	return ok
}

// CanPost reports whether post capability has been granted
func (p *Proxy) CanPost(msgName string) bool {
	_, ok := p.mayPost[msgName]
	return ok
}

// Readable returns the message names with read capability
func (p *Proxy) Readable() []string {
	out := make([]string, 0, len(p.mayRead))
	for name := range p.mayRead {
		out = append(out, name)
	}
	return out
}

// Postable returns the message names with post capability
func (p *Proxy) Postable() []string {
	out := make([]string, 0, len(p.mayPost))
	for name := range p.mayPost {
		out = append(out, name)
	}
	return out
}

// Client mints a worker-private client over this proxy's capabilities.
// The client owns its writer cache, so the fast post path takes no locks.
func (p *Proxy) Client() *Client {
	return &Client{
		proxy:       p,
		writerCache: make(map[string]*Writer),
	}
}

// Client is the per-worker capability object handed to user functions.
// It is not safe for concurrent use; each worker executing a task gets
// its own.
type Client struct {
	proxy       *Proxy
	writerCache map[string]*Writer
}

// GetMessages returns an iterator over a readable board's committed
// messages
func (c *Client) GetMessages(msgName string) (*Iterator, error) {
	if !c.proxy.CanRead(msgName) {
		return nil, fmt.Errorf("message %q: %w", msgName, ErrNoReadAccess)
	}
	return c.proxy.mgr.Iterator(msgName)
}

// GetWriter returns this client's writer for a postable board, creating
// or transparently re-acquiring it if an intervening sync disconnected
// the cached one.
func (c *Client) GetWriter(msgName string) (*Writer, error) {
	if w, ok := c.writerCache[msgName]; ok {
		if w.Connected() {
			return w, nil
		}
	} else if !c.proxy.CanPost(msgName) {
		return nil, fmt.Errorf("message %q: %w", msgName, ErrNoPostAccess)
	}
	w, err := c.proxy.mgr.Writer(msgName)
	if err != nil {
		return nil, err
	}
	c.writerCache[msgName] = w
	return w, nil
}

// NewMessage returns a fresh message handle for a postable board
func (c *Client) NewMessage(msgName string) (*Message, error) {
	w, err := c.GetWriter(msgName)
	if err != nil {
		return nil, err
	}
	return w.NewMessage(), nil
}
