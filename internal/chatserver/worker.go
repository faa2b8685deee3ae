package chatserver

import (
	"errors"
	"io"
	"net"

	"github.com/adred-codev/chattcp/internal/metrics"
	"github.com/adred-codev/chattcp/internal/protocol"
)

// handleConnection is the per-connection worker: it reads records,
// routes them, writes responses, and on any termination path releases
// the session and notifies whichever peers were watching it.
func (s *Server) handleConnection(raw net.Conn) {
	c := newConn(raw)
	framer := protocol.NewFramer(raw)

	defer s.teardown(c)

	for {
		record, err := framer.ReadRecord()
		if err != nil {
			if errors.Is(err, protocol.ErrOversizeRecord) {
				c.WriteRecord(protocol.EncodeErr("0", errBadRequest.Code, errBadRequest.Tag))
			} else if !errors.Is(err, io.EOF) {
				s.log.Debug().Err(err).Msg("connection read error")
			}
			return
		}

		metrics.RecordsReceived.Inc()

		req, err := protocol.Parse(record)
		if err != nil {
			c.WriteRecord(protocol.EncodeErr("0", errBadRequest.Code, errBadRequest.Tag))
			continue
		}

		response := s.dispatch(c, req)
		if err := c.WriteRecord(response); err != nil {
			s.log.Debug().Err(err).Msg("connection write error")
			return
		}
		metrics.RecordsSent.Inc()

		if req.Verb == "DISCONNECT" {
			return
		}
	}
}

// teardown runs once per connection, regardless of why it ended:
// orderly close, I/O error, oversize record, or explicit DISCONNECT.
func (s *Server) teardown(c *conn) {
	userID, sub, ok := s.registry.RemoveByConnection(c)
	if ok {
		metrics.SessionsActive.Dec()
		s.announceDeparture(userID, sub)
	}
	c.Close()
}
