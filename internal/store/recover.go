package store

import (
	"os"

	"github.com/rs/zerolog/log"
)

const InterruptedMessage = "interrupted while moving the finished file"

// ResolveFunc settles the job behind a marker and reports whether the file
// at dest is a partial copy that should be discarded.
type ResolveFunc func(jobID, dest string) (partial bool)

// Recover clears the scratch root and settles every finalize marker left in
// dirs by a previous run. It returns how many markers were handled.
func Recover(dataDir string, dirs []string, resolve ResolveFunc) int {
	if err := os.RemoveAll(ScratchRoot(dataDir)); err != nil {
		log.Warn().Str("op", "store/recover").Err(err).Msg("failed to clear scratch directory")
	}
	markers := ScanMarkers(dirs)
	for _, m := range markers {
		partial := resolve != nil && resolve(m.JobID, m.Destination)
		if partial {
			if err := os.Remove(m.Destination); err != nil && !os.IsNotExist(err) {
				log.Warn().Str("op", "store/recover").Err(err).Msgf("failed to remove partial file %s", m.Destination)
			}
		}
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("op", "store/recover").Err(err).Msg("failed to remove finalize marker")
		}
		log.Info().Str("op", "store/recover").Str("job", m.JobID).Str("destination", m.Destination).Bool("partial", partial).Msg("recovered interrupted finalize")
	}
	return len(markers)
}
