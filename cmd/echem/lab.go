package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/mastercactapus/echem/config"
	"github.com/mastercactapus/echem/datastore"
	"github.com/mastercactapus/echem/instrument"
	"github.com/mastercactapus/echem/method"
	"github.com/mastercactapus/echem/publish"
	"github.com/mastercactapus/echem/runner"
	"github.com/mastercactapus/echem/spjs"
	"github.com/mastercactapus/echem/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// lab ties one instrument to the runner and the sample sinks.
type lab struct {
	log      logrus.FieldLogger
	registry *method.Registry
	runner   *runner.Runner
	store    *datastore.Store
	driver   *instrument.Driver
	pub      publish.Publisher

	closers []io.Closer
}

type runRequest struct {
	Method     string         `json:"method"`
	Params     map[string]any `json:"params"`
	User       string         `json:"user"`
	Project    string         `json:"project"`
	Experiment string         `json:"experiment"`
}

// runHooks are extra sinks for a single run. All are optional.
type runHooks struct {
	emit     method.EmitFunc
	progress method.ProgressFunc
	done     func(*runner.Session, *datastore.Recording)
}

// newLab opens the configured transport and publisher.
func newLab(ctx context.Context, c *config.Config, l *logrus.Logger, reg prometheus.Registerer) (*lab, error) {
	t, closer, err := openTransport(ctx, c.Transport, l)
	if err != nil {
		return nil, err
	}

	opts := []instrument.DriverOption{instrument.WithLogger(l)}
	if c.Debug {
		opts = append(opts, instrument.WithDebug())
	}

	lb := &lab{
		log:      l,
		registry: method.Default,
		runner:   runner.New(runner.WithLogger(l), runner.WithRegisterer(reg)),
		store:    datastore.New(c.DataDir, datastore.WithLogger(l)),
		driver:   instrument.NewDriver(t, opts...),
	}
	if closer != nil {
		lb.closers = append(lb.closers, closer)
	}

	if c.Redis.Enabled {
		r, err := publish.NewRedis(ctx, publish.RedisConfig{
			Addr:       c.Redis.Addr,
			Password:   c.Redis.Password,
			DB:         c.Redis.DB,
			Channel:    c.Redis.Channel,
			HistoryLen: c.Redis.HistoryLen,
		}, l)
		if err != nil {
			return nil, multierr.Append(err, lb.Close())
		}
		lb.pub = r
		lb.closers = append(lb.closers, r)
	}
	return lb, nil
}

func openTransport(ctx context.Context, c config.TransportConfig, l logrus.FieldLogger) (transport.Transport, io.Closer, error) {
	term, err := c.TerminatorString()
	if err != nil {
		return nil, nil, err
	}
	opts := []transport.Option{
		transport.WithReadTimeout(c.ReadTimeout),
		transport.WithTerminator(term),
	}

	l = l.WithField("transport", c.Kind)
	switch c.Kind {
	case config.KindConsole:
		l.Warn("no instrument configured, commands are echoed to the console")
		return transport.NewConsole(os.Stderr), nil, nil
	case config.KindSerial:
		conn, err := transport.OpenSerial(transport.SerialConfig{Name: c.Port, Baud: c.Baud}, opts...)
		if err != nil {
			return nil, nil, err
		}
		l.WithField("port", c.Port).Info("serial port open")
		return conn, conn, nil
	case config.KindGPIB:
		g, err := transport.OpenGPIB(transport.GPIBConfig{Port: c.Port, Address: c.GPIBAddress}, opts...)
		if err != nil {
			return nil, nil, err
		}
		l.WithField("port", c.Port).WithField("address", c.GPIBAddress).Info("gpib controller ready")
		return g, g, nil
	case config.KindSPJS:
		client := spjs.NewClient(c.SPJSURL, spjs.WithLogger(l))
		conn, err := client.OpenConn(ctx, c.Port, c.Baud, opts...)
		if err != nil {
			return nil, nil, multierr.Append(err, client.Close())
		}
		return conn, closerFunc(func() error { return multierr.Combine(conn.Close(), client.Close()) }), nil
	}
	return nil, nil, fmt.Errorf("unknown transport kind %q", c.Kind)
}

type closerFunc func() error

func (fn closerFunc) Close() error { return fn() }

// start builds the requested method, opens its recording and starts it.
// The recording and publisher sink are closed once the run is done, before
// hooks.done is called.
func (lb *lab) start(ctx context.Context, req runRequest, hooks runHooks) (*runner.Session, *datastore.Recording, error) {
	m, err := lb.registry.Build(req.Method, req.Params)
	if err != nil {
		return nil, nil, err
	}
	// checked again by Start; this avoids leaving an empty recording behind
	if lb.runner.Active() != nil {
		return nil, nil, runner.ErrRunInProgress
	}

	rec, err := lb.store.Create(datastore.Header{
		MethodID:   req.Method,
		Method:     m,
		User:       req.User,
		Project:    req.Project,
		Experiment: req.Experiment,
	})
	if err != nil {
		return nil, nil, err
	}

	id := uuid.New()
	var sink *publish.RunSink
	if lb.pub != nil {
		sink = publish.NewRunSink(lb.pub, id.String(), req.Method, lb.log)
	}

	var recordErr sync.Once
	emit := func(x, y float64) {
		if err := rec.Record(x, y); err != nil {
			recordErr.Do(func() { lb.log.WithError(err).WithField("path", rec.Path).Error("recording failed") })
		}
		if sink != nil {
			sink.Emit(x, y)
		}
		if hooks.emit != nil {
			hooks.emit(x, y)
		}
	}

	s, err := lb.runner.Start(ctx, m, lb.driver, emit, hooks.progress, runner.WithID(id))
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return nil, nil, multierr.Append(err, discard(rec))
	}

	go func() {
		<-s.Done()
		if err := rec.Close(); err != nil {
			lb.log.WithError(err).WithField("path", rec.Path).Error("close recording")
		}
		if sink != nil {
			sink.Close()
		}
		if hooks.done != nil {
			hooks.done(s, rec)
		}
	}()
	return s, rec, nil
}

// discard closes and removes a recording that never received data.
func discard(rec *datastore.Recording) error {
	return multierr.Combine(rec.Close(), os.Remove(rec.Path))
}

// Close cancels any active run, waits for it, turns the cell off and
// releases the instrument.
func (lb *lab) Close() error {
	if s := lb.runner.Active(); s != nil {
		s.Cancel()
		<-s.Done()
	}
	var err error
	if _, ok := lb.driver.Mode(); ok {
		err = lb.driver.CellOff()
	}
	for i := len(lb.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, lb.closers[i].Close())
	}
	return err
}
