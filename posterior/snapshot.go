package posterior

// Snapshot is a summary of the particle population after one SMC iteration
type Snapshot struct {
	// Exponent is likelihood exponent
	Exponent float64
	// ESS is effective sample size
	ESS float64
	// Resampled is true if the population was resampled
	Resampled bool
	// ModelSel stores posterior probabilities of the number of dipoles
	ModelSel []float64
	// NumDipoles is estimated number of dipoles
	NumDipoles int
	// Locations stores estimated dipole locations
	Locations []int
	// DipMomStd is posterior mean of dipole moment std
	DipMomStd float64
	// LogPost is posterior mean of the unnormalised log posterior: log-likelihood plus log prior
	LogPost float64
}
