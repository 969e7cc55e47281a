package ppp

const txQueueLen = 8

type packet struct {
	proto uint16
	data  []byte
	n     int
}

// PPPoS is a PPP engine for one end of a serial line. It is not safe for
// concurrent use.
type PPPoS struct {
	conf   Config
	status Status

	rx deframer
	tx []byte

	queue [txQueueLen]packet
	qhead int
	qlen  int

	// ctl is scratch space for building control packets.
	ctl []byte

	nextID  uint8
	lcpID   uint8
	papID   uint8
	sendMRU bool

	lcpLocal bool // our Configure-Request was acked
	lcpPeer  bool // we acked the peer's Configure-Request
	papSent  bool
	papLocal bool // our credentials were accepted
	papPeer  bool // the peer's credentials were accepted

	stats Stats
}

// New returns an engine in the Closed state. All buffers are allocated
// here.
func New(conf Config) *PPPoS {
	mru := conf.mru()
	p := &PPPoS{
		conf: conf,
		rx:   newDeframer(mru + frameOverhead),
		tx:   make([]byte, 0, maxEncodedLen(mru)),
		ctl:  make([]byte, 0, mru),
	}
	for i := range p.queue {
		p.queue[i].data = make([]byte, mru)
	}
	return p
}

// Status returns the session state.
func (p *PPPoS) Status() Status {
	return p.status
}

// Stats returns link counters, including framing errors seen by the
// deframer.
func (p *PPPoS) Stats() Stats {
	s := p.stats
	s.BadFCS = p.rx.badFCS
	s.Dropped += p.rx.dropped
	return s
}

// Open starts link negotiation.
func (p *PPPoS) Open() error {
	if p.status != StatusClosed {
		return ErrAlreadyOpen
	}
	p.status = StatusOpening
	p.sendMRU = true
	p.resetPhases()
	p.sendConfigureRequest(false)
	return nil
}

// Close drops the session and everything queued or half received.
func (p *PPPoS) Close() {
	p.status = StatusClosed
	p.resetPhases()
	p.rx.reset()
	p.qhead = 0
	p.qlen = 0
}

func (p *PPPoS) resetPhases() {
	p.lcpLocal = false
	p.lcpPeer = false
	p.papSent = false
	p.papLocal = false
	p.papPeer = false
}

// Consume feeds bytes read from the line. It stops after the first complete
// frame and returns how many bytes of data were used; the rest must be
// passed again after Poll.
func (p *PPPoS) Consume(data []byte) int {
	return p.rx.feed(data)
}

// Poll advances the engine and returns the next action.
func (p *PPPoS) Poll() Action {
	for {
		if act := p.PollTransmit(); act.Kind == ActionTransmit {
			return act
		}

		proto, info, ok := p.rx.take()
		if !ok {
			return Action{Kind: ActionNone}
		}
		p.stats.FramesIn++
		if p.status == StatusClosed {
			p.stats.Dropped++
			continue
		}

		switch proto {
		case protoLCP:
			p.handleLCP(info)
		case protoPAP:
			p.handlePAP(info)
		case protoData:
			if p.status == StatusOpened {
				return Action{Kind: ActionReceived, Data: info}
			}
			p.stats.Dropped++
		default:
			p.stats.Dropped++
		}
	}
}

// PollTransmit returns the next queued frame to write, leaving received
// data untouched. It returns ActionNone when nothing is queued.
func (p *PPPoS) PollTransmit() Action {
	if p.qlen == 0 {
		return Action{Kind: ActionNone}
	}
	pkt := &p.queue[p.qhead]
	p.qhead = (p.qhead + 1) % txQueueLen
	p.qlen--
	p.tx = appendFrame(p.tx[:0], pkt.proto, pkt.data[:pkt.n])
	p.stats.FramesOut++
	return Action{Kind: ActionTransmit, Data: p.tx}
}

// Send queues payload for transmission. It is framed on a later Poll.
func (p *PPPoS) Send(payload []byte) error {
	if p.status != StatusOpened {
		return ErrNotOpen
	}
	if len(payload) > p.conf.mru() {
		return ErrTooLarge
	}
	return p.enqueue(protoData, payload)
}

func (p *PPPoS) enqueue(proto uint16, data []byte) error {
	if p.qlen == txQueueLen {
		return ErrBusy
	}
	if len(data) > len(p.queue[0].data) {
		return ErrTooLarge
	}
	pkt := &p.queue[(p.qhead+p.qlen)%txQueueLen]
	pkt.proto = proto
	pkt.n = copy(pkt.data, data)
	p.qlen++
	return nil
}

func (p *PPPoS) sendControl(proto uint16, code, id uint8, parts ...[]byte) {
	p.ctl = appendControl(p.ctl[:0], code, id, parts...)
	if err := p.enqueue(proto, p.ctl); err != nil {
		p.stats.Dropped++
	}
}

func (p *PPPoS) newID() uint8 {
	p.nextID++
	return p.nextID
}

// sendConfigureRequest sends our LCP options. A resend keeps the
// identifier so that an ack for the first copy still matches.
func (p *PPPoS) sendConfigureRequest(resend bool) {
	if !resend {
		p.lcpID = p.newID()
	}
	if !p.sendMRU {
		p.sendControl(protoLCP, lcpConfigureRequest, p.lcpID)
		return
	}
	mru := p.conf.mru()
	opt := []byte{lcpOptionMRU, 4, byte(mru >> 8), byte(mru)}
	p.sendControl(protoLCP, lcpConfigureRequest, p.lcpID, opt)
}

func (p *PPPoS) sendAuthRequest(resend bool) {
	if !resend {
		p.papID = p.newID()
	}
	user := []byte(p.conf.Username)
	pass := []byte(p.conf.Password)
	p.sendControl(protoPAP, papAuthRequest, p.papID,
		[]byte{byte(len(user))}, user,
		[]byte{byte(len(pass))}, pass)
}

// advance moves to the next phase once the current one is complete.
func (p *PPPoS) advance() {
	if !p.lcpLocal || !p.lcpPeer {
		return
	}
	if !p.papSent {
		p.papSent = true
		p.sendAuthRequest(false)
	}
	if p.papLocal && p.papPeer {
		p.status = StatusOpened
	}
}

// restart drops back to link establishment, as on a peer restart.
func (p *PPPoS) restart() {
	p.status = StatusOpening
	p.resetPhases()
	p.sendConfigureRequest(false)
}

func (p *PPPoS) handleLCP(info []byte) {
	c, ok := parseControl(info)
	if !ok {
		p.stats.Dropped++
		return
	}
	switch c.code {
	case lcpConfigureRequest:
		if p.status == StatusOpened {
			p.restart()
		} else if !p.lcpLocal {
			p.sendConfigureRequest(true)
		}
		p.sendControl(protoLCP, lcpConfigureAck, c.id, c.data)
		p.lcpPeer = true
		p.advance()

	case lcpConfigureAck:
		if c.id == p.lcpID && p.status == StatusOpening {
			p.lcpLocal = true
			p.advance()
		}

	case lcpConfigureNak, lcpConfigureReject:
		if c.id == p.lcpID && p.status == StatusOpening && p.sendMRU {
			p.sendMRU = false
			p.sendConfigureRequest(false)
		}

	case lcpTerminateRequest:
		p.sendControl(protoLCP, lcpTerminateAck, c.id)
		p.restart()

	case lcpEchoRequest:
		if p.status == StatusOpened && len(c.data) >= 4 {
			// our magic number is always zero
			p.sendControl(protoLCP, lcpEchoReply, c.id, []byte{0, 0, 0, 0}, c.data[4:])
		}

	case lcpTerminateAck, lcpCodeReject, lcpProtocolReject, lcpEchoReply, lcpDiscardRequest:

	default:
		rejected := info
		if limit := p.conf.mru() - 4; len(rejected) > limit {
			rejected = rejected[:limit]
		}
		p.sendControl(protoLCP, lcpCodeReject, p.newID(), rejected)
	}
}

func (p *PPPoS) handlePAP(info []byte) {
	c, ok := parseControl(info)
	if !ok {
		p.stats.Dropped++
		return
	}
	switch c.code {
	case papAuthRequest:
		user, pass, ok := parseAuthRequest(c.data)
		if !ok || string(user) != p.conf.Username || string(pass) != p.conf.Password {
			msg := []byte("bad credentials")
			p.sendControl(protoPAP, papAuthNak, c.id, []byte{byte(len(msg))}, msg)
			p.stats.AuthFail++
			return
		}
		p.sendControl(protoPAP, papAuthAck, c.id, []byte{0})
		p.papPeer = true
		if p.papSent && !p.papLocal {
			p.sendAuthRequest(true)
		}
		p.advance()

	case papAuthAck:
		if c.id == p.papID && p.papSent {
			p.papLocal = true
			p.advance()
		}

	case papAuthNak:
		p.stats.AuthFail++
	}
}
