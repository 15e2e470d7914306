package simulator

import (
	"math/rand"

	"rfid_session_go/internal/protocol/tmr"
)

// Demo is a lively four-port reader with a slowly changing tag population,
// some of it password protected.
func Demo() Config {
	const population = 24
	tags := make([]Tag, population)
	for i := range tags {
		tags[i] = Tag{
			EPC:      []byte{0xE2, 0x80, 0x11, 0x60, 0x60, 0x00, 0x02, 0x0A, byte(i >> 8), byte(i), 0x00, byte(i % 7)},
			Antenna:  byte(i%4 + 1),
			Data:     []byte{0x12, 0x34, 0x56, byte(i), 0x00, 0x00, 0xBE, 0xEF},
			Password: 0,
		}
		if i%5 == 0 {
			tags[i].Password = 0x11110000 + uint32(i)
		}
	}
	tags[population-1].OpError = tmr.Gen2ErrMemoryLocked

	rng := rand.New(rand.NewSource(1))
	return Config{
		Model:            "M6e",
		Version:          "1.21.1.2",
		Antennas:         4,
		SupportedRegions: []byte{1, 2, 3},
		Protocols:        []byte{1},
		GPIO:             []tmr.GPIOPin{{ID: 1, High: true}, {ID: 2}},
		RealTime:         true,
		Generator: func(n int) Cycle {
			var seen []Tag
			for i := range tags {
				if rng.Intn(3) == 0 {
					continue
				}
				tag := tags[i]
				tag.RSSI = int8(-40 - rng.Intn(35))
				seen = append(seen, tag)
			}
			return Cycle{Tags: seen, BufferFull: n > 0 && n%50 == 0}
		},
	}
}
