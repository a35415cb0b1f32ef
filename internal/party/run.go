// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package party

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/Sunereum-Labs/BitVM/internal/dispute"
)

// Run drives every agent in its own goroutine until the claim is terminal
// and returns the final game. Agents only coordinate through m. An agent
// error is returned together with the game as stored at that point.
func Run(ctx context.Context, m *dispute.Manager, claimID string, agents ...Agent) (*dispute.Game, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range agents {
		g.Go(func() error { return drive(gctx, m, claimID, a) })
	}
	runErr := g.Wait()
	final, err := m.Get(ctx, claimID)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return final, runErr
}

func drive(ctx context.Context, m *dispute.Manager, claimID string, a Agent) error {
	for {
		g, err := m.Await(ctx, claimID, a.Party())
		if err != nil {
			return err
		}
		if g.Terminal() {
			return nil
		}
		mv, err := a.Next(g)
		if err != nil {
			return err
		}
		if mv == nil {
			_, err := m.Await(ctx, claimID, dispute.PartyNone)
			return err
		}
		_, err = m.Submit(ctx, claimID, *mv)
		switch {
		case err == nil,
			errors.Is(err, dispute.ErrOutOfTurn),
			errors.Is(err, dispute.ErrMalformedMove),
			errors.Is(err, dispute.ErrRoundTimeout),
			errors.Is(err, dispute.ErrTerminal):
			// the game record already reflects the outcome
		default:
			return err
		}
	}
}
