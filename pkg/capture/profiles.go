package capture

// Demodulator modulation register values
const (
	Mod2FSK   = 0x00
	ModGFSK   = 0x10
	ModASKOOK = 0x30
	Mod4FSK   = 0x40
	ModMSK    = 0x70
)

// Profile is a capture preset for one band and modulation: the settings
// the dongle needs before it can stream pulses for that kind of
// transmitter.
type Profile struct {
	Name        string
	FrequencyHz uint32
	Modulation  uint8
	ChannelBW   uint8 // MDMCFG4[7:4] channel bandwidth code
}

// Common capture presets, one per band of interest.
var (
	// Profile315OOK covers US keyless entry and garage remotes
	Profile315OOK = Profile{
		Name:        "315-ook",
		FrequencyHz: 315000000,
		Modulation:  ModASKOOK,
		ChannelBW:   0x50,
	}

	// Profile433OOK covers the LPD433 remote-control band
	Profile433OOK = Profile{
		Name:        "433-ook",
		FrequencyHz: 433920000,
		Modulation:  ModASKOOK,
		ChannelBW:   0x50,
	}

	// Profile433FSK covers FSK telemetry at LPD433 center
	Profile433FSK = Profile{
		Name:        "433-fsk",
		FrequencyHz: 433920000,
		Modulation:  Mod2FSK,
		ChannelBW:   0x80,
	}

	// Profile868FSK covers EU SRD telemetry
	Profile868FSK = Profile{
		Name:        "868-fsk",
		FrequencyHz: 868350000,
		Modulation:  Mod2FSK,
		ChannelBW:   0x80,
	}

	// Profile915OOK covers the US ISM band
	Profile915OOK = Profile{
		Name:        "915-ook",
		FrequencyHz: 915000000,
		Modulation:  ModASKOOK,
		ChannelBW:   0x50,
	}
)

// Profiles lists every built-in preset.
var Profiles = []Profile{
	Profile315OOK,
	Profile433OOK,
	Profile433FSK,
	Profile868FSK,
	Profile915OOK,
}

// ProfileByName returns the preset with the given name.
func ProfileByName(name string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
