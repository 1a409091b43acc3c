// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"github.com/flux-subsystem/workload-engine/internal/k8s"
)

// logChunk is one unit the multiplexer emits: either a prefixed line
// from a pod's stream, or a terminal error from that pod's producer.
type logChunk struct {
	line string
	err  error
}

// multiplexLogs opens a streaming log read for every pod name and
// fans the lines into a single bounded channel, each line prefixed
// with "[<pod-name>] " so the caller can demultiplex. One producer
// goroutine per pod; the channel is closed once every producer has
// finished. Cancelling ctx closes every underlying stream promptly.
func multiplexLogs(ctx context.Context, gw *k8s.Gateway, namespace string, pods []string, tail int64) <-chan logChunk {
	out := make(chan logChunk, 64)

	var wg sync.WaitGroup
	wg.Add(len(pods))
	for _, pod := range pods {
		go func(pod string) {
			defer wg.Done()
			produceLogs(ctx, gw, namespace, pod, tail, out)
		}(pod)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func produceLogs(ctx context.Context, gw *k8s.Gateway, namespace, pod string, tail int64, out chan<- logChunk) {
	stream, err := gw.StreamPodLogs(ctx, namespace, pod, tail)
	if err != nil {
		select {
		case out <- logChunk{err: err}:
		case <-ctx.Done():
		}
		return
	}

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-closed:
		}
	}()
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := fmt.Sprintf("[%s] %s\n", pod, scanner.Text())
		select {
		case out <- logChunk{line: line}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case out <- logChunk{err: err}:
		case <-ctx.Done():
		}
	}
}
