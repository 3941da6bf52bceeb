package engine

import "capline/internal/domain"

// Test hooks that jump a run into states that are slow to reach by play.

func ForceToEnd(r *Run) { r.index = len(r.plan) }

func SetLearnerMetrics(r *Run, m domain.Metrics) { r.learner.Metrics = m }

func SetAIMetrics(r *Run, m domain.Metrics) { r.ai.Metrics = m }

func SetLegalPass(r *Run, v bool) { r.legalPass = v }

func SetLearnerFinances(r *Run, f domain.Finances) { r.learner.Finances = f }
