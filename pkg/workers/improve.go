/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workers

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/improvement"
	"github.com/AMD-AIG-AIMA/AVS/pkg/plugin"
)

// runImprove drains the currently eligible sessions as one task run.
func (w *Workers) runImprove(ctx context.Context, task *v1.Task) error {
	for {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		processed, err := w.improveGroup(ctx)
		if err != nil {
			return err
		}
		if processed == 0 {
			return nil
		}
	}
}

// RunImproveLoop polls for improvement-eligible sessions until ctx ends.
// The worker process runs this alongside the queue actors.
func (w *Workers) RunImproveLoop(ctx context.Context) {
	ticker := time.NewTicker(config.GetImprovePollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			processed, err := w.improveGroup(ctx)
			if err != nil {
				if !avserrors.IsNotFound(err) {
					klog.ErrorS(err, "improve pass failed")
				}
				break
			}
			if processed == 0 {
				break
			}
		}
	}
}

// improveGroup processes one bounded group of sessions: build inputs, run
// the plugin's adjuster, write personalized copies under row locks, then
// consume the sessions. Returns the number of sessions consumed.
func (w *Workers) improveGroup(ctx context.Context) (int, error) {
	rows, err := w.meta.ListImprovementSessions(ctx, config.GetImproveGroupSize())
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	inputs, consumed, err := w.builder.BuildInputs(ctx, rows)
	if err != nil {
		return 0, err
	}
	if len(inputs) > 0 {
		regular, _, err := w.builder.BluePair()
		if err != nil {
			return 0, err
		}
		if err = w.adjustAndWrite(ctx, regular, inputs); err != nil {
			return 0, err
		}
	}
	if err = w.meta.ClearImprovementFlags(ctx, consumed); err != nil {
		return 0, err
	}
	klog.Infof("improve pass consumed %d sessions, adjusted %d", len(consumed), len(inputs))
	return len(consumed), nil
}

func (w *Workers) adjustAndWrite(ctx context.Context, regular *v1.CollectionInfo, inputs []*v1.ImprovementInput) error {
	adjuster := w.adjusterFor(regular)
	if err := adjuster.Adjust(inputs, regular.EmbeddingModel.MetricType); err != nil {
		return err
	}
	objects, lockIds := improvement.WritebackObjects(inputs)
	if len(objects) == 0 {
		return nil
	}
	return w.vectors.LockObjects(ctx, regular, lockIds, func(tx *sqlx.Tx) error {
		return w.vectors.UpsertTx(ctx, tx, regular, objects, true)
	})
}

// adjusterFor returns the plugin's adjuster, falling back to the platform's
// step adjuster.
func (w *Workers) adjusterFor(info *v1.CollectionInfo) plugin.Adjuster {
	if p, err := plugin.Get(info.EmbeddingModel.PluginName); err == nil {
		if adjuster := p.Adjuster(); adjuster != nil {
			return adjuster
		}
	}
	return improvement.NewStepAdjuster(config.GetAdjusterSteps(), config.GetAdjusterStepSize())
}
