// Package queue drives one netfilter queue worker: it pulls intercepted
// IPv4 datagrams off an nfqueue, asks the policy engine for a verdict, and
// either tells the kernel to accept/drop the original or drops it and
// re-emits the engine's replacement packets through a raw-socket injector.
package queue

import (
	"context"
	"time"

	"github.com/florianl/go-nfqueue"
	"github.com/sirupsen/logrus"

	"github.com/sniveil/sniveil/internal/inject"
	"github.com/sniveil/sniveil/pkg/policy"
)

// gsoPacketLen bounds the copied packet length when GSO superpackets are
// not expected on ingress, keeping nfqueue from buffering more than one
// MTU-sized datagram per read.
const gsoPacketLen = 1500

// Worker owns one nfqueue number for the lifetime of the process.
type Worker struct {
	QueueNum uint16
	UseGSO   bool
	Engine   *policy.Engine
	Injector *inject.Injector
	Log      *logrus.Entry
}

// Run opens the queue, registers the verdict callback, and blocks until
// ctx is cancelled. It returns early only when opening the queue or
// registering the callback fails; later receive errors are logged by the
// error callback and do not end Run.
func (w *Worker) Run(ctx context.Context) error {
	maxPacketLen := uint32(gsoPacketLen)
	if w.UseGSO {
		maxPacketLen = 0xffff
	}
	cfg := nfqueue.Config{
		NfQueue:      w.QueueNum,
		MaxPacketLen: maxPacketLen,
		MaxQueueLen:  0xff,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 50 * time.Millisecond,
	}

	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return err
	}
	defer nf.Close()

	hook := func(a nfqueue.Attribute) int {
		w.handle(nf, a)
		return 0
	}
	errHook := func(e error) int {
		w.Log.WithError(e).Warn("nfqueue error callback")
		return 0
	}

	if err := nf.RegisterWithErrorFunc(ctx, hook, errHook); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

func (w *Worker) handle(nf *nfqueue.Nfqueue, a nfqueue.Attribute) {
	if a.PacketID == nil || a.Payload == nil {
		return
	}
	id := *a.PacketID
	payload := *a.Payload

	verdict, err := w.Engine.Handle(payload)
	if err != nil {
		w.Log.WithError(err).Warn("engine.Handle failed, accepting unchanged")
		w.setVerdict(nf, id, nfqueue.NfAccept)
		return
	}

	switch verdict.Kind {
	case policy.AcceptUnchanged:
		w.setVerdict(nf, id, nfqueue.NfAccept)
	case policy.Drop:
		w.setVerdict(nf, id, nfqueue.NfDrop)
	case policy.ReplaceWith:
		w.setVerdict(nf, id, nfqueue.NfDrop)
		w.emit(verdict)
	}
}

func (w *Worker) setVerdict(nf *nfqueue.Nfqueue, id uint32, verdict int) {
	if err := nf.SetVerdict(id, verdict); err != nil {
		w.Log.WithError(err).Warn("SetVerdict failed")
	}
}

func (w *Worker) emit(verdict policy.Verdict) {
	for i, datagram := range verdict.Packets {
		delay := 0
		if i < len(verdict.DelayMs) {
			delay = verdict.DelayMs[i]
		}
		datagram := datagram
		send := func() {
			if err := w.Injector.Send(datagram); err != nil {
				w.Log.WithError(err).Warn("injector.Send failed")
			}
		}
		if delay > 0 {
			time.AfterFunc(time.Duration(delay)*time.Millisecond, send)
		} else {
			send()
		}
	}
}
