// Package events defines the typed event contract shared by every module.
//
// Event kinds are grouped by namespace:
//
//   - system.*
//   - sense.voice.*
//   - sense.vision.*
//   - brain.*
//   - action.*
//   - feedback.*
//
// The set of kinds is closed. A new kind is added by declaring a constant
// and listing it in declaredKinds; New refuses anything else.
//
// system events
//
//   - SystemStartup (system.startup): process finished wiring subscribers.
//   - SystemShutdown (system.shutdown): terminal event, producers stop
//     sampling and release their devices.
//
// sense events
//
//   - VoiceCommandDetected (sense.voice.command): "text".
//   - UserPresenceDetected (sense.vision.presence): a face came into view,
//     at most once per presence interval.
//   - UserIdentified (sense.vision.identified): "user".
//   - UserLost (sense.vision.lost): no face seen for a presence interval.
//   - UserEmotionDetected (sense.vision.emotion): "emotion", "score".
//
// brain events
//
//   - IntentRecognized (brain.intent.recognized): "intent", "text".
//   - ResponseGenerated (brain.response.generated): "text".
//
// action events
//
//   - OSCommand (action.os.command): "command".
//   - SmartHomeCommand (action.smarthome.command): "device", "action".
//
// feedback events
//
//   - SpeakingStarted (feedback.tts.start): "text".
//   - SpeakingEnded (feedback.tts.end): "text".
package events
