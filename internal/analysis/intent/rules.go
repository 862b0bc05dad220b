package intent

// Rule names of the built-in table, in scan order.
const (
	RuleCourse   = "course"
	RuleML       = "machine_learning"
	RuleHelp     = "help"
	RulePython   = "python"
	RuleGreeting = "greeting"
	RuleThanks   = "thanks"
	FallbackName = "fallback"
)

const courseTemplate = `🎓 Great question! Based on our current offerings, I'd recommend checking out our programming fundamentals, data science, or web development tracks. Each course is designed with interactive lessons and hands-on projects.
<br><br>
<strong>💡 Tip:</strong> You can browse all available courses by clicking the "Browse Courses" button above!`

const mlTemplate = `🤖 Machine Learning is a fascinating field! It's a subset of AI that enables computers to learn and make decisions from data without being explicitly programmed.
<br><br>
<strong>Key concepts include:</strong>
<ul>
    <li>Supervised Learning (with labeled data)</li>
    <li>Unsupervised Learning (finding patterns)</li>
    <li>Neural Networks and Deep Learning</li>
    <li>Data preprocessing and feature engineering</li>
</ul>
<br>
Would you like me to recommend some beginner-friendly ML courses?`

const helpTemplate = `📚 I'm here to help! I can assist you with:
<br><br>
<ul>
    <li><strong>Course Recommendations:</strong> Find the perfect learning path</li>
    <li><strong>Concept Explanations:</strong> Break down complex topics</li>
    <li><strong>Study Tips:</strong> Effective learning strategies</li>
    <li><strong>Technical Questions:</strong> Programming, math, science topics</li>
    <li><strong>Career Guidance:</strong> Skills for different career paths</li>
</ul>
<br>
What specific topic would you like to explore today?`

const pythonTemplate = `🐍 Python is an excellent choice for beginners! It's versatile, readable, and used in web development, data science, AI, automation, and more.
<br><br>
<strong>Getting started with Python:</strong>
<ul>
    <li>Variables and data types</li>
    <li>Control structures (if/else, loops)</li>
    <li>Functions and modules</li>
    <li>Object-oriented programming</li>
    <li>Popular libraries (NumPy, Pandas, Django)</li>
</ul>
<br>
Would you like some practice exercises or course recommendations?`

const greetingTemplate = `👋 Hello! Welcome to CourseAI! I'm excited to help you on your learning journey.
<br><br>
Whether you're looking to start a new skill, advance your career, or explore a hobby, I'm here to guide you. What would you like to learn about today?`

const thanksTemplate = `😊 You're very welcome! I'm glad I could help. Remember, learning is a journey, and every question brings you closer to your goals.
<br><br>
Feel free to ask me anything else - I'm here 24/7 to support your learning adventure!`

const fallbackTemplate = `🤔 That's an interesting question! While I'm still learning (this is a demo interface), I'd love to help you explore that topic further.
<br><br>
<strong>In the full version, I'll be able to:</strong>
<ul>
    <li>Provide detailed explanations on any subject</li>
    <li>Create personalized study plans</li>
    <li>Answer technical questions with code examples</li>
    <li>Recommend resources and practice exercises</li>
</ul>
<br>
For now, try asking about courses, programming, or study tips! 📚✨`

// DefaultRules returns the homepage rule set in priority order. Earlier
// rules win when several match.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleCourse, Keywords: []string{"course", "recommend"}, Template: courseTemplate},
		{Name: RuleML, Keywords: []string{"machine learning", "ai", "artificial intelligence"}, Template: mlTemplate},
		{Name: RuleHelp, Keywords: []string{"help", "how", "what"}, Template: helpTemplate},
		{Name: RulePython, Keywords: []string{"python", "programming"}, Template: pythonTemplate},
		{Name: RuleGreeting, Keywords: []string{"hello", "hi", "hey"}, Template: greetingTemplate},
		{Name: RuleThanks, Keywords: []string{"thank", "thanks"}, Template: thanksTemplate},
	}
}

// DefaultFallback is returned when no rule matches.
func DefaultFallback() string {
	return fallbackTemplate
}
