package crossing

// Aggregate reduces a frame's annotated detections to its signal set.
// Flags only ever switch on; repeated detections of a category do not count.
func Aggregate(cfg Config, dets []Annotated) Signals {
	var sig Signals
	for _, d := range dets {
		label := normalizeLabel(d.Label)

		if cfg.isVehicle(label) {
			if d.Velocity > cfg.MovingSpeedThreshold {
				sig.MovingVehicle = true
			} else {
				sig.StationaryVehicle = true
			}
		}

		if cfg.isTrafficLight(label) {
			c := ColorUnclear
			if d.Color != nil {
				c = *d.Color
			}
			switch c {
			case ColorGreen:
				sig.HasGreenLight = true
			case ColorRed:
				sig.HasRedLight = true
			default:
				// Yellow is treated as unclear: it does not tell a
				// pedestrian anything actionable.
				sig.UnclearSignal = true
			}
		}
	}
	return sig
}
