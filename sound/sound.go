package sound

// Format describes the PCM stream handed to an Output.
type Format struct {
	SampleRate int
	Channels   int
}

// Output defines the interface for speaker implementations
type Output interface {
	// Initialize initializes the audio playback system
	Initialize() error

	// Terminate terminates the audio playback system
	Terminate()

	// Open prepares the device for a stream in the given format
	Open(format Format) error

	// Write blocks until samples have been queued on the device
	Write(samples []int16) error

	// Close stops the stream opened by Open
	Close() error
}

// Config controls how replies are fed to the device.
type Config struct {
	// FramesPerBuffer is the number of frames written between cancellation checks.
	FramesPerBuffer int
}

func GetDefaultConfig() Config {
	return Config{
		FramesPerBuffer: 1024,
	}
}
