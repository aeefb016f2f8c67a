// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roto31/exstreamtv/internal/playout"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// scheduleDoc is the on-disk YAML shape a ChannelConfig.ScheduleRef points
// at, mirroring internal/config's own YAML-overlay idiom rather than
// introducing a second config format.
type scheduleDoc struct {
	KeepMultiPartEpisodes bool          `yaml:"keepMultiPartEpisodes"`
	Shuffle               bool          `yaml:"shuffle"`
	RandomStartPoint      bool          `yaml:"randomStartPoint"`
	Items                 []scheduleItemDoc `yaml:"items"`
}

type scheduleItemDoc struct {
	MediaRefID       string `yaml:"mediaRefId"`
	InPointSeconds   int    `yaml:"inPointSeconds"`
	OutPointSeconds  int    `yaml:"outPointSeconds"`
	FillerKind       string `yaml:"fillerKind"`
	MultiPartGroupID string `yaml:"multiPartGroupId"`
}

// loadSchedule reads path into a playout.Schedule. A missing or unparsable
// file is the caller's to report; an empty schedule is valid (the channel
// then only ever shows the error screen).
func loadSchedule(path string) (playout.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return playout.Schedule{}, fmt.Errorf("reading schedule %s: %w", path, err)
	}

	var doc scheduleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return playout.Schedule{}, fmt.Errorf("parsing schedule %s: %w", path, err)
	}

	items := make([]playout.ScheduleItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, playout.ScheduleItem{
			MediaRefID:       it.MediaRefID,
			InPoint:          secondsToDuration(it.InPointSeconds),
			OutPoint:         secondsToDuration(it.OutPointSeconds),
			FillerKind:       it.FillerKind,
			MultiPartGroupID: it.MultiPartGroupID,
		})
	}

	return playout.Schedule{
		Items:                 items,
		KeepMultiPartEpisodes: doc.KeepMultiPartEpisodes,
		Shuffle:               doc.Shuffle,
		RandomStartPoint:      doc.RandomStartPoint,
	}, nil
}
