// Package sizing converts reasoning-source picks into target weights under a
// volatility target, then into the minimal order set that reaches them.
package sizing

import (
	"math"
	"sort"

	"alphatrade/internal/logger"
	"alphatrade/internal/policy"
	"alphatrade/internal/regime"
)

// Params are the sizing knobs for one run.
type Params struct {
	VolTarget        float64 // annualized target for the whole basket
	MaxWeight        float64 // per-name cap
	MaxGrossExposure float64 // whole-book cap
	AIWeight         float64 // blend between model weights and risk weights
}

const volFloor = 1e-4

// TargetWeights blends the model's conviction weights with score/vol risk
// weights, then scales the basket so its projected volatility matches the
// target. Output never exceeds MaxWeight per name or MaxGrossExposure in sum.
func TargetWeights(picks []policy.Pick, feats []regime.Feature, p Params) map[string]float64 {
	if len(picks) == 0 {
		return nil
	}
	bysym := featureIndex(feats)

	aiW := make(map[string]float64, len(picks))
	for _, pick := range picks {
		aiW[pick.Symbol] = pick.Weight
	}
	riskW := riskWeights(picks, bysym, p.MaxWeight)

	blend := make(map[string]float64, len(aiW))
	for sym := range union(aiW, riskW) {
		w := p.AIWeight*aiW[sym] + (1-p.AIWeight)*riskW[sym]
		blend[sym] = clamp(w, 0, p.MaxWeight)
	}
	dropZeros(blend)
	if len(blend) == 0 {
		return nil
	}
	normalizeIfOver(blend, 1.0)

	// Volatility targeting: estimate basket vol as the weighted sum of
	// per-name vols (no correlation credit, deliberately conservative).
	basketVol := 0.0
	for sym, w := range blend {
		basketVol += w * symbolVol(bysym, sym)
	}
	if basketVol > 0 && p.VolTarget > 0 {
		scale := p.VolTarget / basketVol
		for sym := range blend {
			blend[sym] = clamp(blend[sym]*scale, 0, p.MaxWeight)
		}
	} else if p.VolTarget > 0 {
		logger.Warnf("sizing: no volatility estimates for basket, skipping vol scaling")
	}

	normalizeIfOver(blend, p.MaxGrossExposure)
	dropZeros(blend)
	return blend
}

// riskWeights is score-over-vol weighting for the picked names, capped per
// name and greedily truncated so the total stays within 1.
func riskWeights(picks []policy.Pick, bysym map[string]regime.Feature, maxWeight float64) map[string]float64 {
	raw := make(map[string]float64, len(picks))
	for _, p := range picks {
		f, ok := bysym[p.Symbol]
		if !ok {
			continue
		}
		score := math.Max(f.Score, 0)
		vol := f.Vol20Annual
		if vol <= 0 {
			vol = volFloor
		}
		raw[p.Symbol] = score / vol
	}
	sum := 0.0
	for _, v := range raw {
		sum += v
	}
	if sum == 0 {
		return nil
	}
	w := make(map[string]float64, len(raw))
	for sym, v := range raw {
		w[sym] = math.Min(maxWeight, v/sum)
	}
	total := 0.0
	for _, v := range w {
		total += v
	}
	if total > 1.0 {
		// Hand out the available gross to the largest weights first.
		type kv struct {
			sym string
			w   float64
		}
		ordered := make([]kv, 0, len(w))
		for sym, v := range w {
			ordered = append(ordered, kv{sym, v})
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].w > ordered[j].w })
		alloc := make(map[string]float64, len(ordered))
		residual := 1.0
		for _, it := range ordered {
			a := math.Min(math.Min(it.w, maxWeight), residual)
			if a <= 0 {
				break
			}
			alloc[it.sym] = a
			residual -= a
			if residual <= 1e-6 {
				break
			}
		}
		w = alloc
	}
	return w
}

func symbolVol(bysym map[string]regime.Feature, sym string) float64 {
	if f, ok := bysym[sym]; ok && f.Vol20Annual > 0 {
		return f.Vol20Annual
	}
	return 0
}

func featureIndex(feats []regime.Feature) map[string]regime.Feature {
	out := make(map[string]regime.Feature, len(feats))
	for _, f := range feats {
		out[f.Symbol] = f
	}
	return out
}

func union(a, b map[string]float64) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func normalizeIfOver(w map[string]float64, limit float64) {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum > limit && sum > 0 {
		scale := limit / sum
		for k := range w {
			w[k] *= scale
		}
	}
}

func dropZeros(w map[string]float64) {
	for k, v := range w {
		if v <= 0 {
			delete(w, k)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
