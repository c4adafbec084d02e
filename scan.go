package link

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// scanPollInterval is how often a probe checks whether its DongleWorker
// has completed a transmit-and-ack cycle yet.
const scanPollInterval = time.Millisecond

var scanDatarates = [...]DataRate{DataRate250K, DataRate1M, DataRate2M}

// Scan enumerates every reachable target for address: the direct-USB
// targets present on the host, plus every radio://*/channel/datarate
// combination that acks at least once. All (datarate, channel) probes
// run concurrently against whatever dongles are attached; the
// DongleWorker arbitrates across them exactly as it would for real
// connections, per spec.md §4.6.
func Scan(ctx context.Context, address Address) ([]string, error) {
	manager := DefaultManager()

	results := manager.DirectUSBTargets()
	resultsCh := make(chan string, len(scanDatarates)*(maxRadioChannel+1))

	g, gctx := errgroup.WithContext(ctx)
	for _, rate := range scanDatarates {
		for channel := minRadioChannel; channel <= maxRadioChannel; channel++ {
			rate, channel := rate, channel
			g.Go(func() error {
				return probeChannel(gctx, manager, address, channel, rate, resultsCh)
			})
		}
	}

	err := g.Wait()
	close(resultsCh)
	if err != nil {
		return nil, err
	}
	for uri := range resultsCh {
		results = append(results, uri)
	}
	return results, nil
}

// probeChannel attaches a throwaway connectionState for one
// (channel, datarate) pair, waits for the owning DongleWorker to run at
// least one pass, and reports the URI over found iff that pass saw an
// ack.
func probeChannel(ctx context.Context, manager *DeviceManager, address Address, channel int, rate DataRate, found chan<- string) error {
	uri := fmt.Sprintf("radio://*/%d/%s/%s", channel, rate, address)

	cs := newConnectionState(uri, address, channel, rate, false, 0)
	_, idx, err := manager.attachRadio(cs, -1)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(scanPollInterval)
	defer ticker.Stop()
	for cs.stats.SentCount() < 1 {
		select {
		case <-ctx.Done():
			manager.detachRadio(cs, idx)
			return ctx.Err()
		case <-ticker.C:
		}
	}

	// detachRadio returns only after the worker has finished the pass
	// that counted the send, so that pass's ack is counted by now too.
	manager.detachRadio(cs, idx)
	if cs.stats.AckCount() >= 1 {
		found <- uri
	}
	return nil
}
