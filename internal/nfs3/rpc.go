package nfs3

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/objfsd/objfsd/internal/nfs3/xdr"
)

// ONC RPC (RFC 5531) message types and accept/reject status.
const (
	rpcCall  = 0
	rpcReply = 1

	msgAccepted = 0
	msgDenied   = 1

	rpcSuccess = 0

	authNone = 0
	authSys  = 1
)

// RPCError reports a non-SUCCESS accept_stat or a reject from the
// remote RPC layer, distinct from an NFS-level nfsstat3.
type RPCError struct {
	Stat uint32
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc: call rejected or failed, stat=%d", e.Stat) }

// AuthSys is the AUTH_SYS (AUTH_UNIX) credential carried on every call,
// matching RFC 1057 §9.2.
type AuthSys struct {
	Stamp       uint32
	Machinename string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

func (a AuthSys) encode() []byte {
	e := xdr.NewEncoder()
	e.PutUint32(a.Stamp)
	e.PutString(a.Machinename)
	e.PutUint32(a.UID)
	e.PutUint32(a.GID)
	e.PutUint32(uint32(len(a.GIDs)))
	for _, g := range a.GIDs {
		e.PutUint32(g)
	}
	return e.Bytes()
}

// Client is a record-marking ONC RPC client over a single TCP
// connection, grounded on the original source's rpc++ Channel/Client
// split (filesys/nfs3/nfs3fs.cpp's Channel::open + Client), collapsed
// to the one transport NfsFS actually needs: a synchronous call with a
// matching-xid reply wait, safe for concurrent callers.
type Client struct {
	conn net.Conn
	mu   sync.Mutex // serializes writes (record framing must not interleave)

	xid uint32

	auth AuthSys

	readMu   sync.Mutex
	pending  map[uint32]chan rpcResult
	pendMu   sync.Mutex
	closed   atomic.Bool
	closeErr error
}

type rpcResult struct {
	body []byte
	err  error
}

// Dial opens a TCP connection to addr and starts the reader loop. prog
// and vers select the RPC program; callers pass them per-Call since one
// Client can front both the MOUNT and NFS programs serially during
// mount, but in steady state each Client is dedicated to one program.
func Dial(addr string, timeout time.Duration, auth AuthSys) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		auth:    auth,
		pending: make(map[uint32]chan rpcResult),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

// Call sends a CALL message for (prog, vers, proc) with the XDR-encoded
// argument body and returns the XDR-encoded result body on rpcSuccess.
func (c *Client) Call(prog, vers, proc uint32, argBody []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, io.ErrClosedPipe
	}
	xid := atomic.AddUint32(&c.xid, 1)

	e := xdr.NewEncoder()
	e.PutUint32(xid)
	e.PutUint32(rpcCall)
	e.PutUint32(2) // RPC version 2
	e.PutUint32(prog)
	e.PutUint32(vers)
	e.PutUint32(proc)

	credBody := c.auth.encode()
	e.PutUint32(authSys)
	e.PutOpaque(credBody)
	e.PutUint32(authNone)
	e.PutOpaque(nil)

	e.PutFixedOpaque(argBody)

	ch := make(chan rpcResult, 1)
	c.pendMu.Lock()
	c.pending[xid] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, xid)
		c.pendMu.Unlock()
	}()

	if err := c.writeRecord(e.Bytes()); err != nil {
		return nil, err
	}

	res := <-ch
	return res.body, res.err
}

func (c *Client) writeRecord(body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body))|0x80000000)
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(body)
	return err
}

func (c *Client) readLoop() {
	for {
		record, err := readRecord(c.conn)
		if err != nil {
			c.failAll(err)
			return
		}
		d := xdr.NewDecoder(record)
		xid, err := d.GetUint32()
		if err != nil {
			continue
		}
		mtype, err := d.GetUint32()
		if err != nil || mtype != rpcReply {
			continue
		}
		body, rerr := decodeReplyBody(d)
		c.pendMu.Lock()
		ch, ok := c.pending[xid]
		c.pendMu.Unlock()
		if ok {
			ch <- rpcResult{body: body, err: rerr}
		}
	}
}

func decodeReplyBody(d *xdr.Decoder) ([]byte, error) {
	stat, err := d.GetUint32()
	if err != nil {
		return nil, err
	}
	switch stat {
	case msgAccepted:
		// verifier: flavor + opaque
		if _, err := d.GetUint32(); err != nil {
			return nil, err
		}
		if _, err := d.GetOpaque(400); err != nil {
			return nil, err
		}
		acceptStat, err := d.GetUint32()
		if err != nil {
			return nil, err
		}
		if acceptStat != rpcSuccess {
			return nil, &RPCError{Stat: acceptStat}
		}
		return d.Remainder(), nil
	case msgDenied:
		return nil, &RPCError{Stat: stat}
	default:
		return nil, &RPCError{Stat: stat}
	}
}

func (c *Client) failAll(err error) {
	c.closed.Store(true)
	c.closeErr = err
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	for xid, ch := range c.pending {
		ch <- rpcResult{err: err}
		delete(c.pending, xid)
	}
}

// readRecord reads one complete RPC record from a record-marked TCP
// stream, concatenating fragments until the last-fragment bit is set.
func readRecord(r io.Reader) ([]byte, error) {
	var out []byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		marker := binary.BigEndian.Uint32(hdr[:])
		last := marker&0x80000000 != 0
		length := marker &^ 0x80000000
		frag := make([]byte, length)
		if _, err := io.ReadFull(r, frag); err != nil {
			return nil, err
		}
		out = append(out, frag...)
		if last {
			return out, nil
		}
	}
}
