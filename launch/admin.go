package launch

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/network/throttle"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"github.com/spikeekips/throttler/util/logging"
	"golang.org/x/time/rate"
)

const (
	AdminThrottlePath     = "/throttle"
	AdminDisassociatePath = "/disassociate"
	AdminMetricsPath      = "/metrics"
)

var (
	adminMaxBodySize int64 = 1 << 16
	ErrRateLimited         = util.NewError("over rate limit")
)

type ThrottleStatus struct {
	Associations map[string]int    `json:"associations"`
	Directives   []DirectiveDesign `json:"directives"`
}

type DisassociateRequest struct {
	Reason  *transport.DisassociateInfo `json:"reason,omitempty"`
	Address transport.Address           `json:"address"`
}

type adminAck struct {
	Ack string `json:"ack"`
}

type adminError struct {
	Error string `json:"error"`
}

// AdminServer serves the management commands of throttle transport thru
// http.
type AdminServer struct {
	*logging.Logging
	daemon    *util.Locked[*util.ContextDaemon]
	transport *throttle.Transport
	handler   http.Handler
	limiter   *util.Locked[*rate.Limiter]
	bind      string
	addr      *util.Locked[net.Addr]
}

func NewAdminServer(bind string, t *throttle.Transport) *AdminServer {
	s := &AdminServer{
		Logging: logging.NewLogging(func(zctx zerolog.Context) zerolog.Context {
			return zctx.Str("module", "admin-server")
		}),
		transport: t,
		bind:      bind,
		addr:      util.EmptyLocked[net.Addr](),
		limiter:   util.EmptyLocked[*rate.Limiter](),
		daemon:    util.EmptyLocked[*util.ContextDaemon](),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(AdminThrottlePath, s.handleThrottle)
	mux.HandleFunc(AdminDisassociatePath, s.handleDisassociate)
	mux.Handle(AdminMetricsPath, promhttp.Handler())

	s.handler = mux

	return s
}

// SetRateLimit limits the management commands; the status and metrics are not
// limited. If limit is rate.Inf, no limit.
func (s *AdminServer) SetRateLimit(limit rate.Limit, burst int) *AdminServer {
	if limit == rate.Inf {
		_ = s.limiter.EmptyValue()

		return s
	}

	_ = s.limiter.SetValue(rate.NewLimiter(limit, burst))

	return s
}

func (s *AdminServer) allow() error {
	switch l, isempty := s.limiter.Value(); {
	case isempty:
		return nil
	case !l.Allow():
		return ErrRateLimited.Errorf("limit=%v burst=%d", l.Limit(), l.Burst())
	default:
		return nil
	}
}

func (s *AdminServer) Handler() http.Handler {
	return s.handler
}

// Addr returns the listening address; it is nil before started.
func (s *AdminServer) Addr() net.Addr {
	i, _ := s.addr.Value()

	return i
}

func (s *AdminServer) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext listens the bind address and serves in background; the
// listen error is returned directly.
func (s *AdminServer) StartWithContext(ctx context.Context) error {
	_, err := s.daemon.Set(func(i *util.ContextDaemon, isempty bool) (*util.ContextDaemon, error) {
		if !isempty && i.IsStarted() {
			return nil, util.ErrDaemonAlreadyStarted.Call()
		}

		l, err := net.Listen("tcp", s.bind)
		if err != nil {
			return nil, errors.Wrap(err, "listen admin server")
		}

		d := util.NewContextDaemon("admin-server", func(ctx context.Context) error {
			return s.serve(ctx, l)
		})
		_ = d.SetLogging(s.Logging)

		if err := d.StartWithContext(ctx); err != nil {
			_ = l.Close()

			return nil, err
		}

		_ = s.addr.SetValue(l.Addr())

		return d, nil
	})

	return err
}

func (s *AdminServer) Stop() error {
	switch i, isempty := s.daemon.Value(); {
	case isempty:
		return util.ErrDaemonAlreadyStopped.Call()
	default:
		return i.Stop()
	}
}

func (s *AdminServer) IsStarted() bool {
	i, isempty := s.daemon.Value()

	return !isempty && i.IsStarted()
}

func (s *AdminServer) serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: time.Second * 3, //nolint:gomnd //...
		ErrorLog:          log.New(s.Logging.Writer(zerolog.ErrorLevel), "", 0),
	}

	errch := make(chan error, 1)

	go func() {
		errch <- srv.Serve(l)
	}()

	s.Log().Debug().Stringer("bind", l.Addr()).Msg("admin server started")

	select {
	case err := <-errch:
		return errors.WithStack(err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), time.Second*3) //nolint:gomnd //...
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return errors.WithStack(err)
	}

	if err := <-errch; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}

	return nil
}

func (s *AdminServer) handleThrottle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.status())
	case http.MethodPost:
		if err := s.allow(); err != nil {
			s.writeError(w, http.StatusTooManyRequests, err)

			return
		}

		var d DirectiveDesign

		if err := s.readJSON(r, &d); err != nil {
			s.writeError(w, http.StatusBadRequest, err)

			return
		}

		if err := d.IsValid(nil); err != nil {
			s.writeError(w, http.StatusBadRequest, err)

			return
		}

		cmd, err := d.SetThrottle()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)

			return
		}

		if err := s.command(r.Context(), cmd); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)

			return
		}

		s.Log().Debug().Interface("directive", d).Msg("throttle set")

		s.writeJSON(w, http.StatusOK, adminAck{Ack: "set-throttle"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *AdminServer) handleDisassociate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)

		return
	}

	if err := s.allow(); err != nil {
		s.writeError(w, http.StatusTooManyRequests, err)

		return
	}

	var d DisassociateRequest

	if err := s.readJSON(r, &d); err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	if err := d.Address.IsValid(nil); err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	var cmd interface{} = throttle.ForceDisassociate{Address: d.Address}
	if d.Reason != nil {
		cmd = throttle.ForceDisassociateExplicitly{Address: d.Address, Reason: *d.Reason}
	}

	if err := s.command(r.Context(), cmd); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.Log().Debug().Stringer("address", d.Address).Interface("reason", d.Reason).Msg("disassociated")

	s.writeJSON(w, http.StatusOK, adminAck{Ack: "force-disassociate"})
}

func (s *AdminServer) command(ctx context.Context, cmd interface{}) error {
	switch handled, err := s.transport.ManagementCommand(ctx, cmd); {
	case err != nil:
		return err
	case !handled:
		return util.ErrNotImplemented.Errorf("command not handled, %T", cmd)
	default:
		return nil
	}
}

func (s *AdminServer) status() ThrottleStatus {
	m := s.transport.Manager()

	infos := m.Directives()
	ds := make([]DirectiveDesign, len(infos))

	for i := range infos {
		ds[i] = NewDirectiveDesign(infos[i])
	}

	as := m.Associations()
	counts := make(map[string]int, len(as))

	for k, v := range as {
		counts[k.String()] = v
	}

	return ThrottleStatus{Directives: ds, Associations: counts}
}

func (*AdminServer) readJSON(r *http.Request, v interface{}) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, adminMaxBodySize))
	if err != nil {
		return errors.WithStack(err)
	}

	if len(b) < 1 {
		return util.ErrInvalid.Errorf("empty body")
	}

	if err := util.UnmarshalJSON(b, v); err != nil {
		return util.ErrInvalid.Wrap(err)
	}

	return nil
}

func (s *AdminServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := util.MarshalJSON(v)
	if err != nil {
		s.Log().Error().Err(err).Msg("failed to marshal response")

		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, _ = w.Write(b)
}

func (s *AdminServer) writeError(w http.ResponseWriter, status int, err error) {
	s.Log().Trace().Err(err).Int("status", status).Msg("admin request failed")

	s.writeJSON(w, status, adminError{Error: err.Error()})
}
