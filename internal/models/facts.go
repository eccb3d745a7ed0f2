// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

// Package models defines the row types of the published fact store tables
// and the build report. The dashboard consumes these tables read-only; the
// aggregation engine is their sole producer.
package models

import "time"

// MonthlyMetric is one row of monthly_metrics: sent/delivered counts and
// derived costs per calendar month.
//
// Sent and Delivered count distinct (user, dispatch day) identities, not
// raw dispatch rows: a user receiving two campaigns on the same day counts
// once towards "messaged this day".
type MonthlyMetric struct {
	Month         time.Time `json:"month"`
	Sent          int64     `json:"sent"`
	Delivered     int64     `json:"delivered"`
	DeliveryRate  float64   `json:"delivery_rate"`
	MetaCost      float64   `json:"meta_cost"`
	ConnectlyCost float64   `json:"connectly_cost"`
}

// FunnelRow is one row of funnel_by_product: the sent -> delivered ->
// clicked progression per (month, product). Product "Unknown" is excluded.
type FunnelRow struct {
	Month        time.Time `json:"month"`
	Product      string    `json:"product"`
	Sent         int64     `json:"sent"`
	Delivered    int64     `json:"delivered"`
	Clicked      int64     `json:"clicked"`
	DeliveryRate float64   `json:"delivery_rate"`
	ClickRate    float64   `json:"click_rate"`
}

// Activity bucket labels used by nudge_vs_activity and the campaign
// segmentation. Buckets are closed intervals over distinct activity days:
// exactly 0, 1 through 10 inclusive, and above 10.
const (
	BucketInactive     = "0"
	BucketActive       = "1-10"
	BucketHighlyActive = ">10"
)

// NudgeActivityRow is one row of nudge_vs_activity: the number of nudged
// users in each activity-day bucket per (month, product). All three
// buckets are always present per group, zero-filled when empty.
type NudgeActivityRow struct {
	Month        time.Time `json:"month"`
	Product      string    `json:"product"`
	ActiveBucket string    `json:"active_bucket"`
	Users        int64     `json:"users"`
}

// CampaignPerfRow is one row of campaign_perf: delivery and click totals
// per (month, product, sendout), plus the activity segmentation of that
// campaign's users expressed as percentages of its sent count.
//
// InactivePct + ActivePct + HighPct always partitions the sent population,
// so the three sum to 100 up to 1-decimal rounding.
type CampaignPerfRow struct {
	Month       time.Time `json:"month"`
	Product     string    `json:"product"`
	SendoutName string    `json:"sendout_name"`
	Sent        int64     `json:"sent"`
	Delivered   int64     `json:"delivered"`
	Clicks      int64     `json:"clicks"`
	InactivePct float64   `json:"inactive_pct"`
	ActivePct   float64   `json:"active_pct"`
	HighPct     float64   `json:"high_pct"`
}
